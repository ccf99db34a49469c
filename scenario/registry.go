package scenario

import "sort"

// Info describes a scenario for the CLI listing.
type Info struct {
	Name        string // Identifier used on the command line and in config
	Description string // What the initial conditions look like
	Category    string // "demo", "showcase" or "benchmark"
	BruteForce  bool   // Small enough that exact forces are preferred
	Incremental bool   // Bodies are released a few per tick
}

// generator produces the bodies of a scenario.
type generator func(g *gen) []BodySpec

type entry struct {
	info     Info
	generate generator
}

// Registry holds every known scenario.
type Registry struct {
	entries []entry
	byName  map[string]int
}

// NewRegistry creates a registry with all built-in scenarios.
func NewRegistry() *Registry {
	reg := &Registry{byName: make(map[string]int)}
	reg.registerDefaults()
	return reg
}

// registerDefaults adds the built-in scenarios.
func (r *Registry) registerDefaults() {
	// Two-body demos
	r.register(Info{Name: "collide", Description: "Two equal masses meeting head on", Category: "demo", BruteForce: true}, collide)
	r.register(Info{Name: "merge", Description: "A heavy body catching a light one from behind", Category: "demo", BruteForce: true}, merge)
	r.register(Info{Name: "spin", Description: "A spinning body falling onto a resting one", Category: "demo", BruteForce: true}, spin)

	// Many-body showcases
	r.register(Info{Name: "disk", Description: "Flat rotating disk released a few bodies per tick", Category: "showcase", Incremental: true}, disk)
	r.register(Info{Name: "sphere", Description: "Uniform ball of resting bodies released a few per tick", Category: "showcase", Incremental: true}, sphere)

	// Load
	r.register(Info{Name: "benchmark", Description: "Thin slab of unit masses placed at once", Category: "benchmark"}, benchmark)
}

func (r *Registry) register(info Info, g generator) {
	r.byName[info.Name] = len(r.entries)
	r.entries = append(r.entries, entry{info: info, generate: g})
}

// Get returns scenario info by name.
func (r *Registry) Get(name string) (Info, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Info{}, false
	}
	return r.entries[i].info, true
}

// All returns every scenario in registration order.
func (r *Registry) All() []Info {
	infos := make([]Info, len(r.entries))
	for i, e := range r.entries {
		infos[i] = e.info
	}
	return infos
}

// Names returns the scenario names sorted alphabetically.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		names = append(names, e.info.Name)
	}
	sort.Strings(names)
	return names
}
