package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path"
	"strings"
	"time"

	nettopogen "github.com/MouryaSagar17/NetTopoGen-A-Multi-Topology-Fault-Aware-Network-Simulation-Framework"
	"github.com/MouryaSagar17/NetTopoGen-A-Multi-Topology-Fault-Aware-Network-Simulation-Framework/internal/logging"
	"github.com/MouryaSagar17/NetTopoGen-A-Multi-Topology-Fault-Aware-Network-Simulation-Framework/internal/observability"
)

func main() {
	topoFile := flag.String("topo", "", "path to a topology description (.yaml, .yml or .json)")
	expFile := flag.String("exp", "", "path to an experiment description (.yaml, .yml or .json)")
	outFile := flag.String("out", "", "path the run results are written to, overriding the experiment's resultsfile")
	seed := flag.Uint64("seed", 0, "master seed for the rng streams, overriding the experiment's rngseed")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn or error")
	logFormat := flag.String("log-format", "text", "log format: text or json")
	metricsAddr := flag.String("metrics-addr", "", "HTTP address for Prometheus /metrics, empty disables serving")
	algo := flag.String("algo", "", "compute one path with this algorithm and exit: dijkstra, astar, bellman_ford, bfs or qos")
	src := flag.String("src", "", "source device for the one-shot path query")
	dst := flag.String("dst", "", "destination device for the one-shot path query")
	flag.Parse()

	log := logging.New(logging.Config{Level: *logLevel, Format: *logFormat})
	ctx := context.Background()

	if len(*topoFile) == 0 {
		log.Error(ctx, "no topology given, -topo is required")
		os.Exit(1)
	}
	if ok, err := nettopogen.CheckReadableFiles([]string{*topoFile, *expFile}); !ok {
		log.Error(ctx, "input files not readable", logging.Err(err))
		os.Exit(1)
	}

	td, err := nettopogen.ReadTopoDesc(*topoFile, yamlExt(*topoFile), []byte{})
	if err != nil {
		log.Error(ctx, "failed to read topology", logging.String("path", *topoFile), logging.Err(err))
		os.Exit(1)
	}
	tpg, err := td.BuildTopo()
	if err != nil {
		log.Error(ctx, "failed to build topology", logging.String("topology", td.Name), logging.Err(err))
		os.Exit(1)
	}

	collector, err := observability.NewSimCollector()
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.Err(err))
		os.Exit(1)
	}
	metricsSrv := serveMetrics(*metricsAddr, collector, log)

	ses, err := nettopogen.CreateSession(tpg,
		nettopogen.WithLogger(log),
		nettopogen.WithRecorder(collector),
	)
	if err != nil {
		log.Error(ctx, "failed to create session", logging.Err(err))
		os.Exit(1)
	}

	nodes, links, down := tpg.Counts()
	fmt.Printf("Loaded topology %s: %d devices, %d links, %d down\n", tpg.Name(), nodes, links, down)

	// one-shot query mode computes a single path and exits
	if len(*algo) > 0 {
		runQuery(ses, *algo, *src, *dst, log)
		return
	}

	if len(*expFile) == 0 {
		log.Error(ctx, "nothing to do: give -exp for a run, or -algo with -src and -dst for a query")
		os.Exit(1)
	}

	ed, err := nettopogen.ReadExpDesc(*expFile, yamlExt(*expFile), []byte{})
	if err != nil {
		log.Error(ctx, "failed to read experiment", logging.String("path", *expFile), logging.Err(err))
		os.Exit(1)
	}
	if *seed > 0 {
		ed.RngSeed = *seed
	}
	if len(*outFile) > 0 {
		ed.ResultsFile = *outFile
	}
	if ok, err := nettopogen.CheckOutputFiles([]string{ed.ResultsFile, ed.TopoFile, ed.ChgLogFile}); !ok {
		log.Error(ctx, "output files not writable", logging.Err(err))
		os.Exit(1)
	}

	exp, err := nettopogen.CreateExp(ses, ed)
	if err != nil {
		log.Error(ctx, "failed to create experiment", logging.String("experiment", ed.Name), logging.Err(err))
		os.Exit(1)
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := exp.Run(runCtx)
	if err != nil {
		log.Warn(ctx, "experiment finished with errors", logging.String("experiment", ed.Name), logging.Err(err))
	}

	printSummary(results)

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
}

// runQuery computes one path under the session's weight policy, prints it,
// and exits nonzero when no path exists
func runQuery(ses *nettopogen.Session, algoName, src, dst string, log logging.Logger) {
	ctx := context.Background()
	if len(src) == 0 || len(dst) == 0 {
		log.Error(ctx, "one-shot queries need both -src and -dst")
		os.Exit(1)
	}

	rt, err := ses.ComputePath(src, dst, nettopogen.RouteAlgoFromStr(algoName), nil)
	if err != nil {
		log.Error(ctx, "path query failed",
			logging.String("algo", algoName),
			logging.String("src", src), logging.String("dst", dst),
			logging.Err(err))
		os.Exit(1)
	}

	fmt.Printf("%s: %s  cost=%.6f hops=%d\n", algoName, strings.Join(rt.Path, " -> "), rt.Cost, rt.Hops)
}

// printSummary writes a short human-readable digest of a finished run
func printSummary(results *nettopogen.ExpResults) {
	fmt.Printf("Experiment %s: %d snapshots, %d convergence runs, %d change records\n",
		results.Name, len(results.Timeline), len(results.Convergence), len(results.Changes))

	if len(results.Timeline) > 0 {
		last := results.Timeline[len(results.Timeline)-1]
		fmt.Printf("Traffic: generated=%d delivered=%d dropped=%d loss=%.4f meandelay=%.3fms\n",
			last.PcktsGenerated, last.PcktsDelivered, last.PcktsDropped, last.LossRate, last.MeanDelay)
	}

	downLinks := 0
	for _, lnk := range results.FinalLinks {
		if !lnk.Up {
			downLinks += 1
		}
	}
	fmt.Printf("Final state: %d links, %d down\n", len(results.FinalLinks), downLinks)
}

func serveMetrics(addr string, collector *observability.SimCollector, log logging.Logger) *http.Server {
	if len(addr) == 0 {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}

// yamlExt reports whether a file name selects yaml serialization
func yamlExt(filename string) bool {
	ext := path.Ext(filename)
	return ext == ".yaml" || ext == ".YAML" || ext == ".yml"
}
