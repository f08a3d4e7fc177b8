package app

import "context"

// CleanupStaleRooms runs one cleanup pass.
func (h *Hub) CleanupStaleRooms(ctx context.Context) {
	h.cleanupStaleRooms(ctx)
}
