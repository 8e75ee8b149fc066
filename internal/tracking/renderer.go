package tracking

import (
	"github.com/star/orbitview/internal/classify"
	"github.com/star/orbitview/internal/transform"
)

// Handle identifies a marker or line owned by a Renderer. The zero Handle is
// never issued.
type Handle uint64

// Renderer is the scene the viewer draws into. Handles are opaque to the
// caller; all positions are in render space.
type Renderer interface {
	CreateMarker(category classify.Category) Handle
	SetPosition(h Handle, pos transform.Vec3)
	SetVisible(h Handle, visible bool)
	RemoveMarker(h Handle)
	CreateTrajectoryLine(points []transform.Vec3) Handle
	RemoveTrajectoryLine(h Handle)
}
