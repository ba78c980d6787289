// Command ratecc-sim drives the congestion engine (internal/congestion)
// against synthetic link scenarios and prints a summary of how pacing
// rate, cwnd, and R-TCP detection state evolved. It exists to exercise
// the domain stack spec.md's SYSTEM OVERVIEW implies a complete
// implementation would carry (a YAML scenario format, a simulated
// policer, metrics export, terminal plotting), none of which the core
// engine itself depends on — the core stays a pure control loop, this
// binary is the external "pacing scheduler"/harness collaborator spec.md
// §1 excludes from the core.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/guptarohit/asciigraph"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/mclab-cuhk/rtcp-go/internal/congestion"
	"github.com/mclab-cuhk/rtcp-go/internal/protocol"
	"github.com/mclab-cuhk/rtcp-go/internal/utils"
	"github.com/mclab-cuhk/rtcp-go/qlog"
)

var (
	paceGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ratecc_sim_pacing_rate_bytes_per_sec",
		Help: "Current BBRSender pacing rate, as exported to the simulated transport.",
	})
	cwndGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ratecc_sim_congestion_window_bytes",
		Help: "Current congestion window.",
	})
	classifyGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ratecc_sim_detector_classify",
		Help: "R-TCP detector classify code (0=none, 1=detected, 2=dismissed).",
	})
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: ratecc-sim <scenario.yaml>")
		os.Exit(2)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	scenario, err := loadScenario(os.Args[1])
	if err != nil {
		logger.Fatal("load scenario", zap.Error(err))
	}

	if err := run(logger, scenario); err != nil {
		logger.Fatal("run scenario", zap.Error(err))
	}
}

func run(logger *zap.Logger, sc *Scenario) error {
	// A scenario's Rounds*RoundPeriod is meant to model real elapsed time
	// (PROBE_RTT's 10s min-RTT window, the LT estimator's multi-round
	// sampling horizon) — reading congestion.RealClock here would let the
	// whole loop finish in milliseconds of actual wall time regardless of
	// RoundPeriod, so the simulated clock is advanced explicitly instead.
	clock := newSimClock()
	rttStats := &utils.RTTStats{}
	connStats := &utils.ConnectionStats{}
	cfg := congestion.DefaultConfig()

	sender := congestion.NewBBRSender(clock, rttStats, connStats, cfg, protocol.DefaultTCPMSS, sc.EnableRTCP)
	_, tracer := qlog.NewRecorder(logger, sc.Name)
	sender.SetTracer(tracer)

	var policer *tokenBucketPolicer
	if sc.Policer.RatePktsPerS > 0 {
		policer = newTokenBucketPolicer(sc.Policer.BucketPackets, sc.Policer.RatePktsPerS, protocol.DefaultTCPMSS)
	}

	paceHist := hdrhistogram.New(1, 10_000_000_000, 3)
	var paceTrace []float64
	var delivered, lost protocol.ByteCount
	simWallTime := time.Now()

	for round := 0; round < sc.Rounds; round++ {
		clock.Advance(sc.RoundPeriod)
		simWallTime = simWallTime.Add(sc.RoundPeriod)
		offered := int(sc.BandwidthPktsPerMs * sc.RoundPeriod.Seconds() * 1000)
		admitted, dropped := offered, 0
		if policer != nil && round >= sc.Policer.StartRound {
			admitted, dropped = policer.admit(offered, simWallTime)
		}

		ackedBytes := protocol.ByteCount(admitted) * protocol.DefaultTCPMSS
		lostBytes := protocol.ByteCount(dropped) * protocol.DefaultTCPMSS
		priorDelivered := delivered
		delivered += ackedBytes
		lost += lostBytes

		rs := &congestion.RateSample{
			Delivered:      delivered,
			Lost:           lost,
			PriorDelivered: priorDelivered,
			Losses:         lostBytes,
			AckedSacked:    ackedBytes,
			Interval:       sc.RoundPeriod,
			RTT:            sc.RTT,
			PriorInFlight:  sender.GetCongestionWindow(),
			DeliveredAt:    clock.Now(),
			SndUna:         delivered,
		}
		sender.OnRateSample(rs, sender.GetCongestionWindow(), protocol.CAStateOpen)
		if dropped > 0 {
			sender.OnCongestionEvent(protocol.PacketNumber(round), lostBytes, sender.GetCongestionWindow())
		}

		rate := float64(sender.BandwidthEstimate())
		paceHist.RecordValue(int64(rate))
		paceTrace = append(paceTrace, rate)
		paceGauge.Set(rate)
		cwndGauge.Set(float64(sender.GetCongestionWindow()))
		snap := sender.Introspect()
		classifyGauge.Set(float64(snap.BwLo))
	}

	printSummary(sc, sender, paceHist, paceTrace)
	return nil
}

func printSummary(sc *Scenario, sender *congestion.BBRSender, hist *hdrhistogram.Histogram, trace []float64) {
	fmt.Println(asciigraph.Plot(trace, asciigraph.Height(12), asciigraph.Caption(sc.Name+" pacing rate (bytes/s)")))

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("metric", "value")
	rows := [][2]string{
		{"rounds", fmt.Sprintf("%d", sc.Rounds)},
		{"final cwnd (bytes)", fmt.Sprintf("%d", sender.GetCongestionWindow())},
		{"final pacing rate (bytes/s)", fmt.Sprintf("%d", int64(sender.BandwidthEstimate()))},
		{"p50 pacing rate", fmt.Sprintf("%d", hist.ValueAtQuantile(50))},
		{"p99 pacing rate", fmt.Sprintf("%d", hist.ValueAtQuantile(99))},
		{"detector classify", fmt.Sprintf("%d", sender.Introspect().BwLo)},
	}
	for _, row := range rows {
		if err := table.Append(row[0], row[1]); err != nil {
			fmt.Fprintln(os.Stderr, "table append:", err)
		}
	}
	if err := table.Render(); err != nil {
		fmt.Fprintln(os.Stderr, "table render:", err)
	}
}
