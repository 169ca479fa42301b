package main

import (
	"crypto/rand"
	"io"
	"net"
	"net/http"
	"os"

	"nikand.dev/go/cli"
	"nikand.dev/go/cli/flag"
	"nikand.dev/go/wasmgen"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"
	"tlog.app/go/tlog/ext/tlflag"
	"tlog.app/go/tlog/tlio"
)

func main() {
	gen := &cli.Command{
		Name:        "gen,generate",
		Description: "generate a module from a seed file or a random seed",
		Args:        cli.Args{},
		Action:      genRun,
		Flags: []*cli.Flag{
			cli.NewFlag("out,o", "out.wasm", "output file"),
			cli.NewFlag("seed-size", 4096, "random seed size when no seed file is given"),
			cli.NewFlag("swarm", false, "draw generation limits from the seed prefix"),
			cli.NewFlag("invalid", false, "allow raw function bodies"),
		},
	}

	dump := &cli.Command{
		Name:   "dump",
		Args:   cli.Args{},
		Action: dumpRun,
	}

	app := &cli.Command{
		Name:        "wasmgen",
		Description: "pseudo-random wasm module generator",
		Before:      before,
		Flags: []*cli.Flag{
			cli.NewFlag("log", "stderr?dm", "log output file (or stderr)"),
			cli.NewFlag("verbosity,v", "", "logger verbosity topics"),
			cli.NewFlag("debug", "", "debug address", flag.Hidden),
			cli.FlagfileFlag,
			cli.HelpFlag,
		},
		Commands: []*cli.Command{
			gen,
			dump,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func before(c *cli.Command) error {
	w, err := tlflag.OpenWriter(c.String("log"))
	if err != nil {
		return errors.Wrap(err, "open log file")
	}

	err = tlio.WalkWriter(w, func(w io.Writer) error {
		c, ok := w.(*tlog.ConsoleWriter)
		if !ok {
			return nil
		}

		c.StringOnNewLineMinLen = 16

		return nil
	})
	if err != nil {
		return errors.Wrap(err, "walk writer")
	}

	tlog.DefaultLogger = tlog.New(w)

	tlog.SetVerbosity(c.String("verbosity"))

	if q := c.String("debug"); q != "" {
		l, err := net.Listen("tcp", q)
		if err != nil {
			return errors.Wrap(err, "listen debug")
		}

		tlog.Printw("start debug interface", "addr", l.Addr())

		go func() {
			err := http.Serve(l, nil)
			if err != nil {
				tlog.Printw("debug", "addr", q, "err", err, "", tlog.Fatal)
				panic(err)
			}
		}()
	}

	return nil
}

func genRun(c *cli.Command) (err error) {
	var seed []byte

	if len(c.Args) != 0 {
		seed, err = os.ReadFile(c.Args.First())
		if err != nil {
			return errors.Wrap(err, "read seed")
		}
	} else {
		seed = make([]byte, c.Int("seed-size"))

		_, err = rand.Read(seed)
		if err != nil {
			return errors.Wrap(err, "random seed")
		}
	}

	src := wasmgen.NewSource(seed)

	g := wasmgen.Generator{
		AllowInvalid: c.Bool("invalid"),
	}

	if c.Bool("swarm") {
		g.Config = wasmgen.NewSwarmConfig(src)
	}

	var m wasmgen.Module

	err = g.Module(src, &m)
	if err != nil {
		return errors.Wrap(err, "generate")
	}

	var e wasmgen.Encoder

	data := e.Module(nil, &m)

	err = os.WriteFile(c.String("out"), data, 0o644)
	if err != nil {
		return errors.Wrap(err, "write module")
	}

	tlog.Printw("module generated",
		"out", c.String("out"), "size", len(data), "seed_rest", src.Rest(),
		"types", len(m.Type), "imports", len(m.Import), "funcs", len(m.Func),
		"globals", len(m.Global), "exports", len(m.Export),
		"elements", len(m.Element), "data", len(m.Data))

	return nil
}

func dumpRun(c *cli.Command) (err error) {
	var d wasmgen.Decoder

	for _, a := range c.Args {
		err := func() error {
			data, err := os.ReadFile(a)
			if err != nil {
				return errors.Wrap(err, "read file")
			}

			m := &wasmgen.Module{}

			err = d.Module(data, m)
			if err != nil {
				return errors.Wrap(err, "decode")
			}

			tlog.Printw("module", "start", m.Start, "data_count", m.DataCount)

			for i, v := range m.Import {
				tlog.Printw("import", "i", i, "mod", v.Module, "name", v.Name, "kind", v.Kind)
			}

			for i, v := range m.Type {
				tlog.Printw("type", "i", i, "params", v.Params, "result", v.Result)
			}

			for i, v := range m.Func {
				tlog.Printw("func", "i", i, "tp", v)
			}

			for i, v := range m.Table {
				tlog.Printw("table", "i", i, "elem", v.Elem, "limits", v.Limits)
			}

			for i, v := range m.Memory {
				tlog.Printw("memory", "i", i, "limits", v)
			}

			for i, v := range m.Global {
				tlog.Printw("global", "i", i, "tp", v.Type.Type, "mut", v.Type.Mut, "init", v.Init)
			}

			for i, v := range m.Export {
				tlog.Printw("export", "i", i, "name", v.Name, "kind", v.Kind, "index", v.Index)
			}

			for i, v := range m.Element {
				tlog.Printw("element", "i", i, "kind", v.Kind, "tp", v.Type, "table", v.Table, "exprs", v.Exprs, "items", v.Items)
			}

			for i, v := range m.Code {
				tlog.Printw("code", "i", i, "locals", v.Locals, "body_len", len(v.Body))

				for _, in := range v.Body {
					tlog.V("code").Printw("instr", "op", in)
				}
			}

			for i, v := range m.Data {
				tlog.Printw("data", "i", i, "passive", v.Passive, "memory", v.Memory, "init_len", len(v.Init))
			}

			return nil
		}()
		if err != nil {
			return errors.Wrap(err, "%v", a)
		}
	}

	return nil
}
