package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/Squwid/squidinfo/bencode"
	"github.com/Squwid/squidinfo/magnet"
	"github.com/Squwid/squidinfo/torrentfile"
	"github.com/Squwid/squidinfo/util"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

type config struct {
	maxDepth      int
	strict        bool
	canonicalHash bool
	dump          bool
	magnet        bool
	announce      bool
	jobs          int
	logLevel      string
}

func parseFlags(args []string, output io.Writer) (*config, []string, error) {
	var cfg config
	flags := pflag.NewFlagSet("squidinfo", pflag.ContinueOnError)
	flags.SetOutput(output)
	flags.IntVar(&cfg.maxDepth, "max-depth", bencode.DefaultMaxDepth, "maximum nesting of lists and dictionaries")
	flags.BoolVar(&cfg.strict, "strict", false, "reject duplicate keys, trailing data and piece count mismatches")
	flags.BoolVar(&cfg.canonicalHash, "canonical-hash", false, "hash the re-encoded info dictionary instead of the bytes in the file")
	flags.BoolVar(&cfg.dump, "dump", false, "print the decoded bencode tree")
	flags.BoolVar(&cfg.magnet, "magnet", false, "print a magnet link for each torrent")
	flags.BoolVar(&cfg.announce, "announce", false, "ask the http trackers for peers")
	flags.IntVarP(&cfg.jobs, "jobs", "j", 4, "number of files to load at once")
	flags.StringVar(&cfg.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.Usage = func() {
		fmt.Fprintf(output, "Usage: squidinfo [flags] <torrent file|magnet link>...\n")
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		return nil, nil, err
	}
	if flags.NArg() == 0 {
		flags.Usage()
		return nil, nil, errors.New("no torrent files given")
	}
	if cfg.jobs < 1 {
		cfg.jobs = 1
	}
	return &cfg, flags.Args(), nil
}

func (cfg *config) loader(log *logrus.Entry) torrentfile.Loader {
	return torrentfile.Loader{
		Decoder: bencode.Decoder{
			MaxDepth:              cfg.maxDepth,
			DisallowDuplicateKeys: cfg.strict,
			DisallowTrailing:      cfg.strict,
		},
		CanonicalInfoHash: cfg.canonicalHash,
		VerifyPieceCount:  cfg.strict,
		Logger:            log,
	}
}

func main() {
	logger := logrus.New()

	cfg, args, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		logger.WithError(err).Errorf("Invalid arguments")
		os.Exit(2)
	}

	level, err := logrus.ParseLevel(cfg.logLevel)
	if err != nil {
		logger.WithError(err).Errorf("Invalid log level")
		os.Exit(2)
	}
	logger.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, args, os.Stdout, logrus.NewEntry(logger)); err != nil {
		logger.WithError(err).Errorf("Error reading torrents")
		stop()
		os.Exit(1)
	}
}

// result is everything printed for one command line argument
type result struct {
	source string
	tf     *torrentfile.TorrentFile
	root   bencode.Value
	magnet *magnet.Magnet
	peers  *torrentfile.TrackerResponse
	err    error
}

// run loads every argument concurrently and prints them in the order they were given
func run(ctx context.Context, cfg *config, args []string, out io.Writer, log *logrus.Entry) error {
	loader := cfg.loader(log)
	results := make([]result, len(args))

	var g errgroup.Group
	g.SetLimit(cfg.jobs)
	for i, arg := range args {
		i, arg := i, arg
		g.Go(func() error {
			results[i] = load(ctx, cfg, loader, arg, log)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if r.err != nil {
			log.WithError(r.err).WithField("Source", r.source).Errorf("Could not load torrent")
			failed++
			continue
		}
		printResult(out, cfg, r)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d torrents failed", failed, len(args))
	}
	return nil
}

func load(ctx context.Context, cfg *config, loader torrentfile.Loader, arg string, log *logrus.Entry) result {
	r := result{source: arg}

	switch {
	case util.IsMagnet(arg):
		r.magnet, r.err = magnet.Parse(arg)
		return r
	case util.IsURL(arg):
		r.err = errors.New("only local torrent files and magnet links are supported")
		return r
	}

	data, err := torrentfile.ReadFile(arg)
	if err != nil {
		r.err = err
		return r
	}
	if r.tf, r.root, err = loader.LoadTree(data); err != nil {
		r.err = fmt.Errorf("%s: %w", arg, err)
		return r
	}

	if cfg.announce {
		peerID, err := newPeerID()
		if err != nil {
			r.err = err
			return r
		}
		r.peers, err = r.tf.RequestPeers(ctx, nil, log.WithField("Source", arg), peerID, torrentfile.Port)
		if err != nil {
			log.WithError(err).WithField("Source", arg).Warnf("Could not get peers")
		}
	}
	return r
}

// newPeerID creates a random Azureus style peer id
func newPeerID() ([20]byte, error) {
	var id [20]byte
	n := copy(id[:], "-SQ0001-")
	if _, err := rand.Read(id[n:]); err != nil {
		return id, err
	}
	return id, nil
}

func printResult(out io.Writer, cfg *config, r result) {
	row := func(label string, format string, args ...interface{}) {
		fmt.Fprintf(out, "%-15s%s\n", label+":", fmt.Sprintf(format, args...))
	}

	fmt.Fprintln(out, r.source)
	if r.magnet != nil {
		row("Info hash", "%s", hex.EncodeToString(r.magnet.InfoHash[:]))
		if r.magnet.Name != "" {
			row("Name", "%s", r.magnet.Name)
		}
		if r.magnet.Length > 0 {
			row("File size", "%d (%s)", r.magnet.Length, util.FormatBytes(r.magnet.Length))
		}
		for _, tr := range r.magnet.Trackers {
			row("Tracker", "%s", tr)
		}
		fmt.Fprintln(out)
		return
	}

	tf := r.tf
	row("Name", "%s", tf.Info.Name)
	row("Info hash", "%s", hex.EncodeToString(tf.Info.InfoHash[:]))
	if tf.Announce != "" {
		row("Announce", "%s", tf.Announce)
	}
	for i, tier := range tf.AnnounceList {
		row(fmt.Sprintf("Tier %d", i+1), "%v", tier)
	}
	row("Piece length", "%d (%s)", tf.Info.PieceLength, util.FormatBytes(tf.Info.PieceLength))
	row("File size", "%d (%s)", tf.Info.Length, util.FormatBytes(tf.Info.Length))
	row("File name", "%s", tf.Info.SafeName())
	row("Piece count", "%d", tf.Info.NumPieces)
	if tf.Info.Private {
		row("Private", "yes")
	}
	if !tf.CreationTime().IsZero() {
		row("Created", "%s", tf.CreationTime().Format(time.RFC3339))
	}
	if tf.CreatedBy != "" {
		row("Created by", "%s", tf.CreatedBy)
	}
	if tf.Comment != "" {
		row("Comment", "%s", tf.Comment)
	}
	if tf.Encoding != "" {
		row("Encoding", "%s", tf.Encoding)
	}
	if cfg.magnet {
		row("Magnet", "%s", magnet.FromTorrent(tf))
	}
	if r.peers != nil {
		row("Peers", "%d (every %s)", len(r.peers.Peers), r.peers.Interval)
		for _, p := range r.peers.Peers {
			row("Peer", "%s", p)
		}
	}
	if cfg.dump && r.root.IsValid() {
		row("Tree", "%s", r.root)
	}
	fmt.Fprintln(out)
}
