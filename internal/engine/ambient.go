package engine

var ambientMessages = []string{
	"You're crushing it today!",
	"Smooth boot sequence detected",
	"System purring like a kitten",
	"Achievement streak active",
	"Lumen OS loves you back",
	"Battery optimization master",
	"Kernel threads dancing happily",
	"Wayland compositor flexing",
	"Memory pressure minimal",
	"You're a system wizard",
}

// AmbientMessages returns the built-in ambient catalog.
func AmbientMessages() []string {
	return append([]string(nil), ambientMessages...)
}
