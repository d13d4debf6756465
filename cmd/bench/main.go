// Bench is a benchmarking tool for comparing the dphash table against the
// builtin Go map on insert, lookup and erase workloads.
//
// Usage:
//
//	go run ./cmd/bench -keys 450000 -workload sequential
//
// Flags:
//
//	-keys        Number of keys, or words for wordcount (default: 450,000)
//	-workload    sequential, random or wordcount (default: sequential)
//	-words       Text file for wordcount; Zipf-distributed words if empty
//	-contenders  Comma-separated contender names (default: all)
//	-hash        String pre-hash for wordcount: xxh3, xxhash, murmur3, highway
//	-workers     Goroutines per full rebuild (default: 0)
//	-seed        Seed for key generation and the table (default: 1)
//	-v           Log verbosity: 1 full rebuilds, 2 every bucket rebuild
package main

import (
	"flag"
	"fmt"
	stdlog "log"
	"os"
	"runtime"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"golang.org/x/sys/unix"

	"github.com/tamirms/dphash"
)

// getMaxRSS returns the maximum resident set size in bytes.
// Uses getrusage(RUSAGE_SELF) which tracks peak RSS since process start.
func getMaxRSS() uint64 {
	var rusage unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &rusage); err != nil {
		return 0
	}
	// On macOS, MaxRss is in bytes. On Linux, it's in kilobytes.
	maxRSS := uint64(rusage.Maxrss)
	if runtime.GOOS == "linux" {
		maxRSS *= 1024
	}
	return maxRSS
}

// getLogger returns a stdr logger at verbosity v, clamped to [0, 2].
func getLogger(v int) logr.Logger {
	logger := stdr.New(stdlog.New(os.Stderr, "", stdlog.LstdFlags)).WithName("bench")
	if v > 2 || v < 0 {
		logger.Info("Invalid verbosity, using 0", "v", v)
		v = 0
	}
	stdr.SetVerbosity(v)
	return logger
}

func stringPreHasher(name string, seed uint64) (func(string) uint64, error) {
	switch name {
	case "xxh3":
		return dphash.XXH3String, nil
	case "xxhash":
		return dphash.XXHashString, nil
	case "murmur3":
		return dphash.Murmur3String(uint32(seed)), nil
	case "highway":
		key := make([]byte, 32)
		for i := range key {
			key[i] = byte(seed >> (8 * (i % 8)))
		}
		return dphash.HighwayString(key)
	}
	return nil, fmt.Errorf("unknown hash %q (use xxh3, xxhash, murmur3 or highway)", name)
}

func main() {
	keysFlag := flag.Int("keys", 450_000, "number of keys (words for wordcount)")
	workloadFlag := flag.String("workload", "sequential", "workload: sequential, random or wordcount")
	wordsFlag := flag.String("words", "", "text file for wordcount (default: generated Zipf words)")
	contendersFlag := flag.String("contenders", "", "comma-separated contender names (default: all)")
	hashFlag := flag.String("hash", "xxh3", "string pre-hash for wordcount")
	workersFlag := flag.Int("workers", 0, "goroutines per full rebuild")
	seedFlag := flag.Uint64("seed", 1, "seed for key generation and the table")
	verbosity := flag.Int("v", 0, "log verbosity")
	cpuprofile := flag.String("cpuprofile", "", "write cpu profile to file")
	flag.Parse()

	logger := getLogger(*verbosity)
	if err := run(logger, *keysFlag, *workloadFlag, *wordsFlag, *contendersFlag, *hashFlag, *workersFlag, *seedFlag, *cpuprofile); err != nil {
		logger.Error(err, "benchmark failed")
		os.Exit(1)
	}
}

func run(logger logr.Logger, numKeys int, workload, wordsPath, names, hash string, workers int, seed uint64, cpuprofile string) error {
	if numKeys < 1 {
		return fmt.Errorf("-keys must be positive, got %d", numKeys)
	}
	var selected []string
	if names != "" {
		selected = strings.Split(names, ",")
	}

	counters := new(dphash.Counters)
	opts := []dphash.Option{
		dphash.WithSeed(seed, ^seed),
		dphash.WithWorkers(workers),
		dphash.WithLogger(logger.WithName("dphash")),
		dphash.WithObserver(counters),
	}

	if cpuprofile != "" {
		f, err := os.Create(cpuprofile)
		if err != nil {
			return fmt.Errorf("could not create CPU profile: %w", err)
		}
		defer func() { _ = f.Close() }()
		if err := pprof.StartCPUProfile(f); err != nil {
			return fmt.Errorf("could not start CPU profile: %w", err)
		}
		defer pprof.StopCPUProfile()
	}

	type outcome struct {
		name   string
		result result
		rss    uint64
	}
	var outcomes []outcome

	switch workload {
	case "sequential", "random":
		keys := sequentialKeys(numKeys)
		if workload == "random" {
			keys = randomKeys(numKeys, seed)
		}
		list, err := selectContenders(contenders[uint64](opts), selected)
		if err != nil {
			return err
		}
		for _, c := range list {
			logger.Info("running", "contender", c.key, "description", c.description, "workload", workload, "keys", len(keys))
			m, err := c.new(len(keys) / 8)
			if err != nil {
				return err
			}
			runtime.GC()
			outcomes = append(outcomes, outcome{name: c.key, result: runIntegers(m, keys), rss: getMaxRSS()})
		}

	case "wordcount":
		var words []string
		if wordsPath != "" {
			var err error
			if words, err = loadWords(wordsPath); err != nil {
				return err
			}
		} else {
			words = zipfWords(numKeys, max(numKeys/10, 2), seed)
		}
		prehash, err := stringPreHasher(hash, seed)
		if err != nil {
			return err
		}
		list, err := selectContenders(contenders[string](append(opts, dphash.WithPreHasher(prehash))), selected)
		if err != nil {
			return err
		}
		for _, c := range list {
			logger.Info("running", "contender", c.key, "description", c.description, "workload", workload, "words", len(words))
			m, err := c.new(0)
			if err != nil {
				return err
			}
			runtime.GC()
			outcomes = append(outcomes, outcome{name: c.key, result: runWordcount(m, words), rss: getMaxRSS()})
		}

	default:
		return fmt.Errorf("unknown workload %q (use sequential, random or wordcount)", workload)
	}

	fmt.Printf("\n%-10s %-8s %12s %10s %12s\n", "contender", "phase", "ops", "time", "ns/op")
	for _, o := range outcomes {
		for _, p := range o.result.phases {
			fmt.Printf("%-10s %-8s %12d %10s %12.1f\n", o.name, p.name, p.ops,
				p.duration.Round(time.Millisecond), float64(p.duration.Nanoseconds())/float64(max(p.ops, 1)))
		}
		fmt.Printf("%-10s size=%d digest=%#016x peakRSS=%.1fMB\n", o.name, o.result.size, o.result.digest, float64(o.rss)/1_000_000)
	}
	fmt.Printf("\ndphash rehashes: table=%d bucket=%d resize=%d draws=%d widenings=%d\n",
		counters.TableRehashes.Load(), counters.BucketRehashes.Load(), counters.BucketResizes.Load(),
		counters.Draws.Load(), counters.Widenings.Load())

	for _, o := range outcomes[1:] {
		if o.result.digest != outcomes[0].result.digest || o.result.size != outcomes[0].result.size {
			return fmt.Errorf("%s disagrees with %s", o.name, outcomes[0].name)
		}
	}
	return nil
}
