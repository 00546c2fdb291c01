package store

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// NewClassroomID generates a client-side classroom id: a composite of the
// current unix-millisecond timestamp and a random suffix. Remote-assigned
// ids may use any opaque scheme; the store treats both uniformly.
func NewClassroomID() string {
	return fmt.Sprintf("c%d%04d", time.Now().UnixMilli(), rand.IntN(10000))
}
