package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	carenest "github.com/gaurav-seth/carenest-helper"
	"github.com/gaurav-seth/carenest-helper/broadcast"
	"github.com/gaurav-seth/carenest-helper/engine"
	"github.com/gaurav-seth/carenest-helper/job"
	"github.com/gaurav-seth/carenest-helper/participant"
	"github.com/gaurav-seth/carenest-helper/sink"
	"github.com/gaurav-seth/carenest-helper/store/memory"
)

type simulation struct {
	helpers int
	jobs    int
	timeout time.Duration
}

func newSimulateCmd(flags *rootFlags) *cobra.Command {
	sim := simulation{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Race in-process helpers for a batch of jobs and report the winners",
		Long: "simulate starts an in-memory hub, attaches the given number of helpers, " +
			"posts jobs, and checks that every job ended with exactly one winner.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := flags.load()
			if err != nil {
				return err
			}
			// Simulated helpers are never registered.
			cfg.Claims.RequireKnownHelpers = false
			hub, err := carenest.New(
				carenest.WithConfig(cfg.HubConfig()),
				carenest.WithLogger(logger),
				carenest.WithStore(memory.New()),
				carenest.WithBus(broadcast.NewBroker(logger)),
			)
			if err != nil {
				return err
			}
			eng, err := engine.Build(hub, engine.WithoutActivityFeed())
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), sim.timeout)
			defer cancel()
			defer eng.Stop(context.WithoutCancel(ctx))
			return sim.run(ctx, eng, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&sim.helpers, "helpers", 5, "Number of competing helpers")
	cmd.Flags().IntVar(&sim.jobs, "jobs", 10, "Number of jobs to post")
	cmd.Flags().DurationVar(&sim.timeout, "timeout", 30*time.Second, "Give up after this long")
	return cmd
}

func (s simulation) run(ctx context.Context, eng *engine.Engine, out io.Writer) error {
	if s.helpers < 1 || s.jobs < 1 {
		return fmt.Errorf("%w: --helpers and --jobs must be positive", carenest.ErrInvalidInput)
	}

	var (
		mu      sync.Mutex
		results = make(map[string][]sink.Result)
		settled = make(chan struct{}, s.helpers*s.jobs)
	)
	record := func(r sink.Result) {
		if r.Duplicate {
			return
		}
		mu.Lock()
		results[r.JobID.String()] = append(results[r.JobID.String()], r)
		mu.Unlock()
		settled <- struct{}{}
	}
	for i := range s.helpers {
		eng.AddHelper(fmt.Sprintf("+1555%07d", i+1), sink.WithOnOutcome(record))
	}
	if err := eng.Start(ctx); err != nil {
		return err
	}
	if err := waitForSubscribers(ctx, eng, s.helpers); err != nil {
		return err
	}

	patient, err := eng.Participants().RegisterPatient(ctx, participant.PatientRequest{
		Name:        "Simulated Patient",
		PhoneNumber: "+15550000000",
		Location:    "Simulation Ward",
	})
	if err != nil {
		return err
	}

	jobs := make([]*job.Job, 0, s.jobs)
	for i := range s.jobs {
		j, err := eng.CreateJob(ctx, patient.PhoneNumber, fmt.Sprintf("Bed %d", i+1))
		if err != nil {
			return err
		}
		jobs = append(jobs, j)
	}

	for range s.helpers * s.jobs {
		select {
		case <-settled:
		case <-ctx.Done():
			return fmt.Errorf("waiting for helpers: %w", ctx.Err())
		}
	}

	mu.Lock()
	defer mu.Unlock()
	return s.report(ctx, eng, jobs, results, out)
}

func (s simulation) report(ctx context.Context, eng *engine.Engine, jobs []*job.Job, results map[string][]sink.Result, out io.Writer) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tLOCATION\tWINNER\tLOSERS")

	wins := make(map[string]int)
	var failed []string
	for _, j := range jobs {
		var winners []string
		losers := 0
		for _, r := range results[j.ID.String()] {
			switch r.Outcome {
			case job.OutcomeWon:
				winners = append(winners, r.WorkerRef)
			case job.OutcomeLost:
				losers++
			}
		}
		stored, err := eng.GetJob(ctx, j.ID)
		if err != nil {
			return err
		}
		winner := "-"
		if len(winners) == 1 && stored.AssignedWorkerRef == winners[0] {
			winner = winners[0]
			wins[winner]++
		} else {
			failed = append(failed, j.ID.String())
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", j.ID, j.Location, winner, losers)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	refs := make([]string, 0, len(wins))
	for ref := range wins {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	fmt.Fprintln(out)
	tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "HELPER\tWINS")
	for _, ref := range refs {
		fmt.Fprintf(tw, "%s\t%d\n", ref, wins[ref])
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(failed) > 0 {
		return fmt.Errorf("%d of %d jobs did not settle on exactly one winner: %v", len(failed), len(jobs), failed)
	}
	return nil
}

func waitForSubscribers(ctx context.Context, eng *engine.Engine, n int) error {
	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()
	for {
		st, err := eng.Stats(ctx)
		if err != nil {
			return err
		}
		if st.Broker == nil || st.Broker.JobSubscribers >= n {
			return nil
		}
		select {
		case <-tick.C:
		case <-ctx.Done():
			return fmt.Errorf("waiting for %d helpers to subscribe: %w", n, ctx.Err())
		}
	}
}
