package rooms

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// Word pools for random room slugs. Three short words keep slugs memorable
// enough to read out loud while leaving a large enough space that collisions
// between concurrently created rooms are unlikely.
var slugAdjectives = []string{
	"tiny", "happy", "sleepy", "fluffy", "sparkly", "cheery", "silly", "jolly", "cozy", "shiny",
	"golden", "silver", "crimson", "emerald", "purple", "bright", "gentle", "brave", "calm", "swift",
	"silent", "bouncy", "fuzzy", "plucky", "merry", "peppy", "quiet", "lively", "dusty", "mellow",
}

var slugAnimals = []string{
	"kitten", "puppy", "bunny", "panda", "koala", "fox", "otter", "hedgehog", "squirrel", "hamster",
	"fawn", "lamb", "raccoon", "mole", "ferret", "beaver", "dolphin", "narwhal", "penguin", "flamingo",
	"sparrow", "robin", "toucan", "parrot", "heron", "magpie", "badger", "marmot", "lynx", "ibex",
}

var slugNouns = []string{
	"sunbeam", "stardust", "pepper", "muffin", "bubble", "sprout", "glimmer", "whisker", "echo", "jelly",
	"marble", "maple", "cocoa", "hazel", "breeze", "meadow", "willow", "ember", "poppy", "pixel",
	"biscuit", "cupcake", "nugget", "toffee", "twig", "lantern", "puddle", "pebble", "comet", "orbit",
}

// NewSlug returns a random room name of the form adjective-animal-noun,
// e.g. "cozy-otter-lantern".
func NewSlug() string {
	parts := []string{
		slugAdjectives[randomIndex(len(slugAdjectives))],
		slugAnimals[randomIndex(len(slugAnimals))],
		slugNouns[randomIndex(len(slugNouns))],
	}
	return strings.Join(parts, "-")
}

func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		// crypto/rand failing means the process has much bigger problems;
		// fall back to the first word rather than panicking in a handler.
		return 0
	}
	return int(n.Int64())
}
