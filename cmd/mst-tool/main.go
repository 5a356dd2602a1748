package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/rsky-pds/repo-mst/atproto/repo"
	"github.com/rsky-pds/repo-mst/atproto/repo/mst"
	"github.com/rsky-pds/repo-mst/fakedata"
	"github.com/rsky-pds/repo-mst/repostore"

	"github.com/ipfs/go-cid"
	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.App{
		Name:  "mst-tool",
		Usage: "development tool for repository merkle search trees",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log verbosity level (eg: warn, info, debug)",
				EnvVars: []string{"MST_LOG_LEVEL", "GO_LOG_LEVEL", "LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "store",
				Usage:   "repo storage location (memory://, pebble://<dir>, sqlite://<file>, postgres://...)",
				Value:   "pebble://./data/mst-tool",
				EnvVars: []string{"MST_STORE"},
			},
			&cli.StringFlag{
				Name:    "did",
				Usage:   "account DID which owns the repository",
				Value:   "did:plc:mst-tool-local",
				EnvVars: []string{"MST_DID"},
			},
			&cli.IntFlag{
				Name:    "cache-size",
				Usage:   "number of blocks to cache in memory (0 to disable)",
				Value:   4096,
				EnvVars: []string{"MST_CACHE_SIZE"},
			},
		},
	}
	app.Commands = []*cli.Command{
		&cli.Command{
			Name:      "put",
			Usage:     "create or update a record key",
			ArgsUsage: "<key> <cid>",
			Action:    runPut,
		},
		&cli.Command{
			Name:      "get",
			Usage:     "print the CID stored under a key",
			ArgsUsage: "<key>",
			Action:    runGet,
		},
		&cli.Command{
			Name:      "rm",
			Usage:     "delete a record key",
			ArgsUsage: "<key>",
			Action:    runRm,
		},
		&cli.Command{
			Name:  "ls",
			Usage: "list keys in order",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "prefix",
					Usage: "only list keys starting with this prefix",
				},
				&cli.IntFlag{
					Name:  "limit",
					Usage: "max number of keys to list (0 for all)",
				},
			},
			Action: runLs,
		},
		&cli.Command{
			Name:   "root",
			Usage:  "print the current root CID and revision",
			Action: runRoot,
		},
		&cli.Command{
			Name:      "diff",
			Usage:     "diff an earlier root against the current tree",
			ArgsUsage: "<old-root>",
			Action:    runDiff,
		},
		&cli.Command{
			Name:   "verify",
			Usage:  "load the full tree and check its structure",
			Action: runVerify,
		},
		&cli.Command{
			Name:      "fill",
			Usage:     "commit a batch of random records",
			ArgsUsage: "<count>",
			Flags: []cli.Flag{
				&cli.Int64Flag{
					Name:  "seed",
					Usage: "random seed for generated data",
					Value: 1,
				},
			},
			Action: runFill,
		},
		&cli.Command{
			Name:      "height",
			Usage:     "print the tree layer a key belongs on",
			ArgsUsage: "<key>",
			Action:    runHeight,
		},
		&cli.Command{
			Name:   "print",
			Usage:  "dump the tree structure",
			Action: runPrint,
		},
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	slog.SetDefault(slog.New(h))
	app.RunAndExitOnError()
}

func configLogger(cctx *cli.Context, writer io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cctx.String("log-level")) {
	case "error":
		level = slog.LevelError
	case "warn":
		level = slog.LevelWarn
	case "info":
		level = slog.LevelInfo
	case "debug":
		level = slog.LevelDebug
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}

func openRepo(cctx *cli.Context) (*repo.Repo, error) {
	ctx := cctx.Context
	logger := configLogger(cctx, os.Stderr)
	did := cctx.String("did")
	store, err := repostore.Open(ctx, cctx.String("store"), did, repostore.OpenOptions{
		CacheSize: cctx.Int("cache-size"),
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	return repo.Open(ctx, did, store, logger)
}

func splitKey(key string) (string, string, error) {
	if err := mst.EnsureValidKey(key); err != nil {
		return "", "", err
	}
	collection, rkey, _ := strings.Cut(key, "/")
	return collection, rkey, nil
}

func runPut(cctx *cli.Context) error {
	ctx := cctx.Context
	if cctx.Args().Len() != 2 {
		return fmt.Errorf("need to provide key and CID")
	}
	collection, rkey, err := splitKey(cctx.Args().Get(0))
	if err != nil {
		return err
	}
	val, err := cid.Decode(cctx.Args().Get(1))
	if err != nil {
		return fmt.Errorf("invalid CID: %w", err)
	}

	r, err := openRepo(cctx)
	if err != nil {
		return err
	}
	defer r.Storage.Close()

	action := repo.WriteCreate
	if _, err := r.GetRecordCID(ctx, collection, rkey); err == nil {
		action = repo.WriteUpdate
	} else if !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	res, err := r.ApplyWrites(ctx, []repo.Write{{Action: action, Collection: collection, RKey: rkey, Value: val}})
	if err != nil {
		return err
	}
	fmt.Printf("%s\t%s\n", res.Root, res.Rev)
	return nil
}

func runGet(cctx *cli.Context) error {
	ctx := cctx.Context
	collection, rkey, err := splitKey(cctx.Args().First())
	if err != nil {
		return err
	}
	r, err := openRepo(cctx)
	if err != nil {
		return err
	}
	defer r.Storage.Close()

	c, err := r.GetRecordCID(ctx, collection, rkey)
	if err != nil {
		return err
	}
	fmt.Println(c.String())
	return nil
}

func runRm(cctx *cli.Context) error {
	ctx := cctx.Context
	collection, rkey, err := splitKey(cctx.Args().First())
	if err != nil {
		return err
	}
	r, err := openRepo(cctx)
	if err != nil {
		return err
	}
	defer r.Storage.Close()

	res, err := r.ApplyWrites(ctx, []repo.Write{{Action: repo.WriteDelete, Collection: collection, RKey: rkey}})
	if err != nil {
		return err
	}
	fmt.Printf("%s\t%s\n", res.Root, res.Rev)
	return nil
}

func runLs(cctx *cli.Context) error {
	ctx := cctx.Context
	r, err := openRepo(cctx)
	if err != nil {
		return err
	}
	defer r.Storage.Close()

	leaves, err := r.Tree().ListWithPrefix(ctx, cctx.String("prefix"), cctx.Int("limit"))
	if err != nil {
		return err
	}
	for _, l := range leaves {
		fmt.Printf("%s\t%s\n", l.Key, l.Value)
	}
	return nil
}

func runRoot(cctx *cli.Context) error {
	r, err := openRepo(cctx)
	if err != nil {
		return err
	}
	defer r.Storage.Close()

	root, rev := r.Head()
	if root == nil {
		return fmt.Errorf("repository has no commits")
	}
	fmt.Printf("%s\t%s\n", root, rev)
	return nil
}

func runDiff(cctx *cli.Context) error {
	ctx := cctx.Context
	since, err := cid.Decode(cctx.Args().First())
	if err != nil {
		return fmt.Errorf("need to provide a valid root CID: %w", err)
	}
	r, err := openRepo(cctx)
	if err != nil {
		return err
	}
	defer r.Storage.Close()

	res, err := r.Diff(ctx, since)
	if err != nil {
		return err
	}
	for _, op := range res.Ops {
		switch op.Kind {
		case mst.DiffAdded:
			fmt.Printf("%s\t%s\t%s\n", op.Kind, op.Key, op.NewCid)
		case mst.DiffRemoved:
			fmt.Printf("%s\t%s\t%s\n", op.Kind, op.Key, op.OldCid)
		default:
			fmt.Printf("%s\t%s\t%s -> %s\n", op.Kind, op.Key, op.OldCid, op.NewCid)
		}
	}
	slog.Info("diff complete", "ops", len(res.Ops), "newNodes", len(res.NewNodes), "removedNodes", len(res.RemovedNodes))
	return nil
}

func runVerify(cctx *cli.Context) error {
	ctx := cctx.Context
	r, err := openRepo(cctx)
	if err != nil {
		return err
	}
	defer r.Storage.Close()

	tree := r.Tree()
	if err := tree.Hydrate(ctx, 8); err != nil {
		return err
	}
	if err := tree.Verify(ctx); err != nil {
		return err
	}
	count, err := tree.LeafCount(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("verified tree (%d records)\n", count)
	return nil
}

func runFill(cctx *cli.Context) error {
	ctx := cctx.Context
	var count int
	if _, err := fmt.Sscanf(cctx.Args().First(), "%d", &count); err != nil || count <= 0 {
		return fmt.Errorf("need to provide a positive record count")
	}
	r, err := openRepo(cctx)
	if err != nil {
		return err
	}
	defer r.Storage.Close()

	data, err := fakedata.NewGenerator(cctx.Int64("seed")).BulkData(ctx, count, r.Storage)
	if err != nil {
		return err
	}
	writes := make([]repo.Write, 0, len(data))
	for key, val := range data {
		collection, rkey, _ := strings.Cut(key, "/")
		writes = append(writes, repo.Write{Action: repo.WriteCreate, Collection: collection, RKey: rkey, Value: val})
	}
	res, err := r.ApplyWrites(ctx, writes)
	if err != nil {
		return err
	}
	fmt.Printf("%s\t%s\n", res.Root, res.Rev)
	slog.Info("filled repo", "records", count, "blocks", res.Blocks)
	return nil
}

func runHeight(cctx *cli.Context) error {
	key := cctx.Args().First()
	if key == "" {
		return fmt.Errorf("need to provide a key")
	}
	fmt.Println(mst.LeadingZerosOnHash(key))
	return nil
}

func runPrint(cctx *cli.Context) error {
	ctx := cctx.Context
	r, err := openRepo(cctx)
	if err != nil {
		return err
	}
	defer r.Storage.Close()

	return mst.DebugPrintTree(ctx, os.Stdout, r.Tree())
}
