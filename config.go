package wasmgen

type (
	// Config bounds every growth loop of the generator and gates
	// optional feature surfaces. Pure data, no side effects.
	Config interface {
		MaxTypes() int
		MaxImports() int
		MaxFuncs() int
		MaxTables() int
		MaxMemories() int
		MaxGlobals() int
		MaxExports() int
		MaxElementSegments() int
		MaxElements() int
		MaxDataSegments() int

		ReferenceTypesEnabled() bool
		BulkMemoryEnabled() bool
	}

	// DefaultConfig is the fixed bound set. Both feature sets are on,
	// SwarmConfig explores the off states.
	DefaultConfig struct{}

	// SwarmConfig is a bound set itself derived from the input stream,
	// so a single byte buffer drives both configuration and content.
	SwarmConfig struct {
		Types           int
		Imports         int
		Funcs           int
		Tables          int
		Memories        int
		Globals         int
		Exports         int
		ElementSegments int
		Elements        int
		DataSegments    int

		ReferenceTypes bool
		BulkMemory     bool
	}
)

func (DefaultConfig) MaxTypes() int           { return 100 }
func (DefaultConfig) MaxImports() int         { return 100 }
func (DefaultConfig) MaxFuncs() int           { return 100 }
func (DefaultConfig) MaxTables() int          { return 1 }
func (DefaultConfig) MaxMemories() int        { return 1 }
func (DefaultConfig) MaxGlobals() int         { return 100 }
func (DefaultConfig) MaxExports() int         { return 100 }
func (DefaultConfig) MaxElementSegments() int { return 100 }
func (DefaultConfig) MaxElements() int        { return 100 }
func (DefaultConfig) MaxDataSegments() int    { return 100 }

func (DefaultConfig) ReferenceTypesEnabled() bool { return true }
func (DefaultConfig) BulkMemoryEnabled() bool     { return true }

// NewSwarmConfig derives a configuration from a prefix of the stream.
// Field draw order is fixed, it is part of the determinism contract.
func NewSwarmConfig(s *Source) SwarmConfig {
	return SwarmConfig{
		Types:           s.Int(0, 100),
		Imports:         s.Int(0, 100),
		Funcs:           s.Int(0, 100),
		Tables:          s.Int(0, 10),
		Memories:        s.Int(0, 1),
		Globals:         s.Int(0, 100),
		Exports:         s.Int(0, 100),
		ElementSegments: s.Int(0, 100),
		Elements:        s.Int(0, 100),
		DataSegments:    s.Int(0, 100),

		ReferenceTypes: s.Bool(),
		BulkMemory:     s.Bool(),
	}
}

func (c SwarmConfig) MaxTypes() int           { return c.Types }
func (c SwarmConfig) MaxImports() int         { return c.Imports }
func (c SwarmConfig) MaxFuncs() int           { return c.Funcs }
func (c SwarmConfig) MaxTables() int          { return c.Tables }
func (c SwarmConfig) MaxMemories() int        { return c.Memories }
func (c SwarmConfig) MaxGlobals() int         { return c.Globals }
func (c SwarmConfig) MaxExports() int         { return c.Exports }
func (c SwarmConfig) MaxElementSegments() int { return c.ElementSegments }
func (c SwarmConfig) MaxElements() int        { return c.Elements }
func (c SwarmConfig) MaxDataSegments() int    { return c.DataSegments }

func (c SwarmConfig) ReferenceTypesEnabled() bool { return c.ReferenceTypes }
func (c SwarmConfig) BulkMemoryEnabled() bool     { return c.BulkMemory }
