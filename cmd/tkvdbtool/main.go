// Command tkvdbtool is the process-level entry point around the tkvdb
// engine (spec.md §1's "Out of scope" list: CLI parsing, process
// lifecycle, and logging all live here, outside the engine proper).
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/slaykovsky/tkvdb"
)

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	app := &cli.App{
		Name:  "tkvdbtool",
		Usage: "inspect and mutate a tkvdb database file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "db", Required: true, Usage: "path to the database file"},
			&cli.BoolFlag{Name: "verbose"},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("verbose") {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
			return nil
		},
		Commands: []*cli.Command{
			putCommand(),
			getCommand(),
			delCommand(),
			dumpCommand(),
			infoCommand(),
			vacuumCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Error().Err(err).Msg("tkvdbtool failed")
		os.Exit(1)
	}
}

func openDB(c *cli.Context) (*tkvdb.DB, error) {
	opts := tkvdb.DefaultOptions()
	return tkvdb.Open(c.String("db"), opts)
}

func putCommand() *cli.Command {
	return &cli.Command{
		Name:      "put",
		Usage:     "insert or overwrite a key",
		ArgsUsage: "<key> <value>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return cli.Exit("put requires <key> <value>", 2)
			}
			db, err := openDB(c)
			if err != nil {
				return err
			}
			defer db.Close()

			tr, err := tkvdb.NewTransaction(db, tkvdb.ArenaDynamic, 0)
			if err != nil {
				return err
			}
			if err := tr.Put(tkvdb.DatumFromString(c.Args().Get(0)), tkvdb.DatumFromString(c.Args().Get(1))); err != nil {
				return err
			}
			if err := tr.Commit(); err != nil {
				return err
			}
			log.Info().Str("key", c.Args().Get(0)).Msg("put committed")
			return nil
		},
	}
}

func getCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "fetch the value for a key",
		ArgsUsage: "<key>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("get requires <key>", 2)
			}
			db, err := openDB(c)
			if err != nil {
				return err
			}
			defer db.Close()

			tr, err := tkvdb.NewTransaction(db, tkvdb.ArenaDynamic, 0)
			if err != nil {
				return err
			}
			val, err := tr.Get(tkvdb.DatumFromString(c.Args().Get(0)))
			if err != nil {
				return err
			}
			fmt.Println(val.String())
			return nil
		},
	}
}

func delCommand() *cli.Command {
	return &cli.Command{
		Name:      "del",
		Usage:     "delete a key (or, with --prefix, every key under it)",
		ArgsUsage: "<key>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "prefix"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("del requires <key>", 2)
			}
			db, err := openDB(c)
			if err != nil {
				return err
			}
			defer db.Close()

			tr, err := tkvdb.NewTransaction(db, tkvdb.ArenaDynamic, 0)
			if err != nil {
				return err
			}
			if err := tr.Del(tkvdb.DatumFromString(c.Args().Get(0)), c.Bool("prefix")); err != nil {
				return err
			}
			return tr.Commit()
		},
	}
}

func dumpCommand() *cli.Command {
	return &cli.Command{
		Name:  "dump",
		Usage: "print every key/value pair in ascending order",
		Action: func(c *cli.Context) error {
			db, err := openDB(c)
			if err != nil {
				return err
			}
			defer db.Close()

			tr, err := tkvdb.NewTransaction(db, tkvdb.ArenaDynamic, 0)
			if err != nil {
				return err
			}
			cur := tkvdb.NewCursor(tr)
			err = cur.First()
			for err == nil {
				k, _ := cur.Key()
				v, _ := cur.Val()
				fmt.Printf("%s\t%s\n", k.String(), v.String())
				err = cur.Next()
			}
			if err == tkvdb.ErrNotFound || err == tkvdb.ErrEmpty {
				return nil
			}
			return err
		},
	}
}

func infoCommand() *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "print footer bookkeeping",
		Action: func(c *cli.Context) error {
			db, err := openDB(c)
			if err != nil {
				return err
			}
			defer db.Close()
			info, err := db.Info()
			if err != nil {
				return err
			}
			fmt.Printf("root_off=%d gap_begin=%d gap_end=%d\n", info.RootOff, info.GapBegin, info.GapEnd)
			return nil
		},
	}
}

func vacuumCommand() *cli.Command {
	return &cli.Command{
		Name:  "vacuum",
		Usage: "reclaim space occupied by obsolete transactions",
		Action: func(c *cli.Context) error {
			db, err := openDB(c)
			if err != nil {
				return err
			}
			defer db.Close()

			tr, err := tkvdb.NewTransaction(db, tkvdb.ArenaDynamic, 0)
			if err != nil {
				return err
			}
			vac, err := tkvdb.NewTransaction(db, tkvdb.ArenaDynamic, 0)
			if err != nil {
				return err
			}
			tres, err := tkvdb.NewTransaction(db, tkvdb.ArenaDynamic, 0)
			if err != nil {
				return err
			}
			if err := tkvdb.Vacuum(tr, vac, tres); err != nil {
				return err
			}
			log.Info().Msg("vacuum complete")
			return nil
		},
	}
}
