package chat

import (
	"fmt"
	"math/rand/v2"
)

var (
	namePrefixes = []string{"Shadow", "Bright", "Tactical", "Swift", "Precise", "Mystic", "Silent", "Storm"}
	nameSuffixes = []string{"Hawk", "Tiger", "Eagle", "Wolf", "Ghost", "Phantom", "Knight", "Lord"}
)

// NewPseudonym returns a random display name such as "Silent Wolf #042".
// It is never tied to the author's identity.
func NewPseudonym() string {
	return fmt.Sprintf("%s %s #%03d",
		namePrefixes[rand.IntN(len(namePrefixes))],
		nameSuffixes[rand.IntN(len(nameSuffixes))],
		rand.IntN(999)+1,
	)
}
