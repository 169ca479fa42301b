package wasmgen

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// coreFeatures maps the configured feature gates to the validator's.
// Reference types imply bulk memory, the extended element segment
// encodings belong to both proposals.
func coreFeatures(cfg Config) api.CoreFeatures {
	f := api.CoreFeatureMutableGlobal | api.CoreFeatureMultiValue | api.CoreFeatureSignExtensionOps

	if cfg.ReferenceTypesEnabled() {
		f |= api.CoreFeatureReferenceTypes | api.CoreFeatureBulkMemoryOperations
	}
	if cfg.BulkMemoryEnabled() {
		f |= api.CoreFeatureBulkMemoryOperations
	}

	return f
}

func validateRuns(tb *testing.T, cfg Config, swarm bool, runs int, rndSeed int64) {
	tb.Helper()

	ctx := context.Background()
	rnd := rand.New(rand.NewSource(rndSeed))

	var g Generator
	var m Module
	var e Encoder

	for run := 0; run < runs; run++ {
		seed := make([]byte, rnd.Intn(8<<10))
		_, _ = rnd.Read(seed)

		src := NewSource(seed)

		c := cfg
		if swarm {
			c = NewSwarmConfig(src)
		}

		g.Config = c

		err := g.Module(src, &m)
		require.NoError(tb, err)

		bin := e.Module(nil, &m)

		rc := wazero.NewRuntimeConfigInterpreter().WithCoreFeatures(coreFeatures(c))
		rt := wazero.NewRuntimeWithConfig(ctx, rc)

		compiled, err := rt.CompileModule(ctx, bin)
		if err == nil {
			compiled.Close(ctx)
		}

		_ = rt.Close(ctx)

		require.NoError(tb, err, "run %v: seed len %v\nmodule: types %v funcs %v tables %v memories %v globals %v elements %v data %v",
			run, len(seed), len(m.Type), len(m.Func), m.NumTables(), m.NumMemories(), m.NumGlobals(), len(m.Element), len(m.Data))
	}
}

func TestValidateDefaultConfig(tb *testing.T) {
	validateRuns(tb, DefaultConfig{}, false, 200, 1)
}

func TestValidateSwarmConfig(tb *testing.T) {
	validateRuns(tb, nil, true, 200, 2)
}

func TestValidateManyTables(tb *testing.T) {
	cfg := SwarmConfig{
		Types:           20,
		Imports:         20,
		Funcs:           20,
		Tables:          8,
		Memories:        1,
		Globals:         20,
		Exports:         20,
		ElementSegments: 20,
		Elements:        20,
		DataSegments:    10,
		ReferenceTypes:  true,
		BulkMemory:      true,
	}

	validateRuns(tb, cfg, false, 200, 4)
}

func TestValidateDecodeBack(tb *testing.T) {
	rnd := rand.New(rand.NewSource(3))

	var g Generator
	var m, back Module
	var e Encoder
	var d Decoder

	for run := 0; run < 100; run++ {
		seed := make([]byte, rnd.Intn(8<<10))
		_, _ = rnd.Read(seed)

		err := g.Module(NewSource(seed), &m)
		require.NoError(tb, err)

		bin := e.Module(nil, &m)

		err = d.Module(bin, &back)
		require.NoError(tb, err, "run %v", run)

		bin2 := e.Module(nil, &back)
		require.Equal(tb, bin, bin2, "run %v", run)
	}
}
