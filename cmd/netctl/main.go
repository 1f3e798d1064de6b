// Command netctl is the operations CLI: help and version are handled by
// the urfave/cli framework itself; the one custom subcommand,
// time-bench, drives the timer service with num one-shot timers and
// reports fire-latency statistics.
package main

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/urfave/cli"

	"github.com/vela-systems/netkit/timer"
)

// version is the netctl release identifier reported by `netctl version`.
const version = "0.1.0"

func main() {
	app := cli.NewApp()
	app.Name = "netctl"
	app.Usage = "netkit operations CLI"
	app.Version = version

	app.Commands = []cli.Command{
		{
			Name:  "time-bench",
			Usage: "benchmark timer.Service fire latency with num one-shot timers",
			Flags: []cli.Flag{
				cli.IntFlag{Name: "num", Value: 1000, Usage: "number of one-shot timers to schedule"},
				cli.BoolFlag{Name: "fast", Usage: "schedule timers at 0ms instead of staggered deadlines"},
				cli.BoolFlag{Name: "force", Usage: "allow num > 100000 (refused with an error otherwise)"},
			},
			Action: func(c *cli.Context) error {
				return runTimeBench(c.Int("num"), c.Bool("fast"), c.Bool("force"))
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "netctl:", err)
		os.Exit(1)
	}
}

// runTimeBench schedules num one-shot timers (staggered 0..num
// milliseconds apart unless fast is set, in which case every timer
// targets "now") and reports min/p50/p99/max fire latency.
func runTimeBench(num int, fast, force bool) error {
	if num > 100000 && !force {
		return fmt.Errorf("num=%d exceeds 100000; pass --force to proceed anyway", num)
	}
	if num <= 0 {
		return fmt.Errorf("num must be positive, got %d", num)
	}

	svc := timer.New()
	svc.Start()
	defer svc.StopSync()

	latencies := make([]time.Duration, num)
	var wg sync.WaitGroup
	wg.Add(num)

	start := time.Now()
	for i := 0; i < num; i++ {
		i := i
		delay := time.Duration(i) * time.Millisecond
		if fast {
			delay = 0
		}
		target := start.Add(delay)
		_, err := svc.AddTimeout(timer.AddTimeoutParams{
			Deadline: target,
			Callback: func(any) {
				latencies[i] = time.Since(target)
				wg.Done()
			},
		})
		if err != nil {
			return fmt.Errorf("scheduling timer %d: %w", i, err)
		}
	}
	wg.Wait()

	sort.Slice(latencies, func(a, b int) bool { return latencies[a] < latencies[b] })
	fmt.Printf("time-bench: num=%d fast=%v\n", num, fast)
	fmt.Printf("  min: %s\n", latencies[0])
	fmt.Printf("  p50: %s\n", latencies[num*50/100])
	fmt.Printf("  p99: %s\n", latencies[min(num-1, num*99/100)])
	fmt.Printf("  max: %s\n", latencies[num-1])
	return nil
}
