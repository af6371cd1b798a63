package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"opdag/backend/merge"
	"opdag/backend/reduce"
	"opdag/backend/replica"
	"opdag/backend/replica/impl"
	"opdag/backend/snapshot"
	"opdag/backend/storage"
	"opdag/backend/storage/badger"
	"opdag/backend/types"
)

func startFlag() cli.Flag {
	return &cli.StringSliceFlag{
		Name:  "start",
		Usage: "operation ids (seq@replica) to start from; defaults to the heads",
	}
}

func outFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "out",
		Aliases: []string{"o"},
		Usage:   "output file, - for stdout",
		Value:   "-",
	}
}

func orderCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:      "order",
		Usage:     "print the replay order of a snapshot",
		ArgsUsage: "SNAPSHOT",
		Flags:     []cli.Flag{startFlag()},
		Action: func(c *cli.Context) error {
			r, err := e.openSnapshot(c.Args().First())
			if err != nil {
				return err
			}
			start, err := parseStart(c.StringSlice("start"))
			if err != nil {
				return err
			}

			history, err := r.TopologicalOrder(start...)
			if err != nil {
				return err
			}
			for _, n := range history {
				fmt.Fprintf(e.out, "%s\t%d\n", n.ID, n.Payload)
			}
			return nil
		},
	}
}

// counterReducers are the reducers available for int64 histories.
var counterReducers = map[string]reduce.Reducer[int64, int64]{
	"counter": reduce.Counter{},
	"min":     reduce.Min[int64]{},
	"max":     reduce.Max[int64]{},
}

func reduceCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:      "reduce",
		Usage:     "fold a snapshot into a value",
		ArgsUsage: "SNAPSHOT",
		Flags: []cli.Flag{
			startFlag(),
			&cli.StringFlag{
				Name:  "reducer",
				Usage: "counter, min or max",
				Value: "counter",
			},
		},
		Action: func(c *cli.Context) error {
			reducer, ok := counterReducers[c.String("reducer")]
			if !ok {
				return xerrors.Errorf("unknown reducer %q", c.String("reducer"))
			}

			r, err := e.openSnapshot(c.Args().First())
			if err != nil {
				return err
			}
			start, err := parseStart(c.StringSlice("start"))
			if err != nil {
				return err
			}

			value, err := replica.Reduce(r, reducer, start...)
			if err != nil {
				return err
			}
			fmt.Fprintln(e.out, value)
			return nil
		},
	}
}

func mergeCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:      "merge",
		Usage:     "merge two snapshots into one",
		ArgsUsage: "LOCAL REMOTE",
		Flags:     []cli.Flag{outFlag()},
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return xerrors.New("merge needs exactly two snapshots")
			}
			local, err := readSnapshot(c.Args().Get(0))
			if err != nil {
				return err
			}
			remote, err := readSnapshot(c.Args().Get(1))
			if err != nil {
				return err
			}

			merged, err := merge.Merge(local, remote)
			if err != nil {
				return err
			}
			e.log.Info().Msgf("%d operations new to %s", len(merge.Diff(local, remote)), local)

			return e.writeSnapshot(c.String("out"), merged)
		},
	}
}

func storeCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "store",
		Usage: "manage the snapshot database",
		Subcommands: []*cli.Command{
			{
				Name:      "save",
				Usage:     "store a snapshot under its replica id",
				ArgsUsage: "SNAPSHOT",
				Action: func(c *cli.Context) error {
					snap, err := readSnapshot(c.Args().First())
					if err != nil {
						return err
					}
					return e.withStore(func(s storage.Store) error {
						if err := storage.SaveSnapshot(c.Context, s, snap); err != nil {
							return err
						}
						e.log.Info().Msgf("saved %s", snap)
						return nil
					})
				},
			},
			{
				Name:      "load",
				Usage:     "print the stored snapshot of a replica",
				ArgsUsage: "REPLICA",
				Flags:     []cli.Flag{outFlag()},
				Action: func(c *cli.Context) error {
					return e.withStore(func(s storage.Store) error {
						snap, err := storage.LoadSnapshot[int64](c.Context, s, c.Args().First())
						if err != nil {
							return err
						}
						return e.writeSnapshot(c.String("out"), snap)
					})
				},
			},
			{
				Name:  "list",
				Usage: "list the replicas with a stored snapshot",
				Action: func(c *cli.Context) error {
					return e.withStore(func(s storage.Store) error {
						replicas, err := s.Replicas(c.Context)
						if err != nil {
							return err
						}
						for _, r := range replicas {
							fmt.Fprintln(e.out, r)
						}
						return nil
					})
				},
			},
			{
				Name:      "delete",
				Usage:     "remove the stored snapshot of a replica",
				ArgsUsage: "REPLICA",
				Action: func(c *cli.Context) error {
					return e.withStore(func(s storage.Store) error {
						return s.Delete(c.Context, c.Args().First())
					})
				},
			},
		},
	}
}

func demoCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "demo",
		Usage: "build two replicas, merge them and print orders and values",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "dir",
				Usage: "also write the replica snapshots to this directory",
			},
		},
		Action: func(c *cli.Context) error {
			return e.demo(c.String("dir"))
		},
	}
}

func (e *env) demo(dir string) error {
	a, err := e.newReplica("a")
	if err != nil {
		return err
	}
	b, err := e.newReplica("b")
	if err != nil {
		return err
	}

	// a: 0 -> 5, then b: 7 concurrent with a: 3, both after 5
	root, err := a.CreateNode(0)
	if err != nil {
		return err
	}
	five, err := a.CreateNode(5, root)
	if err != nil {
		return err
	}
	if _, err := b.Merge(a.ExportSnapshot()); err != nil {
		return err
	}
	if _, err := a.CreateNode(3, five); err != nil {
		return err
	}
	if _, err := b.CreateNode(7, five); err != nil {
		return err
	}

	if dir != "" {
		for _, r := range []replica.Replica[int64]{a, b} {
			if err := e.writeSnapshot(filepath.Join(dir, r.ID()+".json"), r.ExportSnapshot()); err != nil {
				return err
			}
		}
	}

	for _, pair := range [][2]replica.Replica[int64]{{a, b}, {b, a}} {
		added, err := pair[0].Merge(pair[1].ExportSnapshot())
		if err != nil {
			return err
		}
		fmt.Fprintf(e.out, "%s learned %d operations from %s\n", pair[0].ID(), added, pair[1].ID())
	}

	for _, r := range []replica.Replica[int64]{a, b} {
		history, err := r.TopologicalOrder()
		if err != nil {
			return err
		}
		ids := make([]string, len(history))
		for i, n := range history {
			ids[i] = n.ID.String()
		}
		fmt.Fprintf(e.out, "%s order: %s\n", r.ID(), strings.Join(ids, " "))

		for _, name := range []string{"counter", "min", "max"} {
			value, err := replica.Reduce(r, counterReducers[name])
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "%s %s: %d\n", r.ID(), name, value)
		}
	}
	return nil
}

func (e *env) newReplica(id string) (replica.Replica[int64], error) {
	conf, err := e.cfg.Replica(os.Stderr)
	if err != nil {
		return nil, err
	}
	conf.ReplicaID = id
	return impl.NewReplica[int64](conf)
}

// openSnapshot loads a snapshot file into a replica named after it.
func (e *env) openSnapshot(path string) (replica.Replica[int64], error) {
	snap, err := readSnapshot(path)
	if err != nil {
		return nil, err
	}

	id := snap.Replica
	if e.cfg.ReplicaID != "" {
		id = e.cfg.ReplicaID
	}
	r, err := e.newReplica(id)
	if err != nil {
		return nil, err
	}
	if _, err := r.Merge(snap); err != nil {
		return nil, err
	}
	return r, nil
}

func (e *env) withStore(fn func(s storage.Store) error) error {
	s, err := badger.Open(e.cfg.Storage(&e.log))
	if err != nil {
		return err
	}
	defer s.Close()

	return fn(s)
}

func (e *env) writeSnapshot(path string, snap types.Snapshot[int64]) error {
	if path == "" || path == "-" {
		return snapshot.Encode(e.out, snap)
	}

	f, err := os.Create(path)
	if err != nil {
		return xerrors.Errorf("failed to create %s: %w", path, err)
	}
	if err := snapshot.Encode(f, snap); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func readSnapshot(path string) (types.Snapshot[int64], error) {
	if path == "" {
		return types.Snapshot[int64]{}, xerrors.New("missing snapshot file")
	}

	f, err := os.Open(path)
	if err != nil {
		return types.Snapshot[int64]{}, xerrors.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	snap, err := snapshot.Decode[int64](f)
	if err != nil {
		return types.Snapshot[int64]{}, xerrors.Errorf("failed to decode %s: %w", path, err)
	}
	return snap, nil
}

func parseStart(values []string) ([]types.OpID, error) {
	start := make([]types.OpID, 0, len(values))
	for _, v := range values {
		id, err := types.ParseOpID(v)
		if err != nil {
			return nil, err
		}
		start = append(start, id)
	}
	return start, nil
}
