package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dhandebaz/sangathan-sub001/internal/email"
	"github.com/dhandebaz/sangathan-sub001/internal/jobs"
	"github.com/dhandebaz/sangathan-sub001/internal/models"
	"github.com/dhandebaz/sangathan-sub001/internal/queue"
)

var (
	drainMax         int
	drainConcurrency int

	emailTo      []string
	emailSubject string
	emailHTML    string
	emailNotify  bool

	jobsCmd = &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and drive the background job queue",
	}

	jobsProcessCmd = &cobra.Command{
		Use:   "process",
		Short: "Claim and run at most one pending job",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := state.svc.Processor.ProcessNext(cmd.Context())
			if err != nil {
				return err
			}
			if out.Job == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "no pending jobs")
				return nil
			}
			res := map[string]any{
				"job_id": out.Job.ID,
				"type":   out.Job.Type,
				"status": out.Status,
			}
			if out.Err != nil {
				res["error"] = out.Err.Error()
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	jobsDrainCmd = &cobra.Command{
		Use:   "drain",
		Short: "Run pending jobs until the queue is empty or --max is reached",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := state.svc.Processor.Drain(cmd.Context(), drainMax, drainConcurrency)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}

	jobsEnqueueEmailCmd = &cobra.Command{
		Use:   "enqueue-email",
		Short: "Queue a send_email job",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []jobs.QueueOption{jobs.WithMaxAttempts(state.cfg.Jobs.MaxAttempts)}
			if emailNotify {
				trigger := queue.NewClient(queue.RedisOpt(state.cfg.Redis))
				defer trigger.Close()
				opts = append(opts, jobs.WithNotifier(trigger))
			}
			q := jobs.NewQueue(state.svc.JobStore, state.logger, opts...)

			id, ok := q.EnqueueID(cmd.Context(), models.JobSendEmail, email.Message{
				To:      emailTo,
				Subject: emailSubject,
				HTML:    emailHTML,
			})
			if !ok {
				return fmt.Errorf("job was not queued, see log for the cause")
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	jobsRequeueCmd = &cobra.Command{
		Use:   "requeue-expired",
		Short: "Return in-progress jobs with an expired lease to pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := state.svc.Processor.RequeueExpired(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requeued %d job(s)\n", n)
			return nil
		},
	}

	jobsStatsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Count jobs by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			counts, err := state.svc.JobStore.CountByStatus(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), counts)
		},
	}
)

func init() {
	jobsDrainCmd.Flags().IntVar(&drainMax, "max", 100, "maximum number of jobs to run")
	jobsDrainCmd.Flags().IntVar(&drainConcurrency, "concurrency", 4, "concurrent workers")

	jobsEnqueueEmailCmd.Flags().StringSliceVar(&emailTo, "to", nil, "recipient address (repeatable)")
	jobsEnqueueEmailCmd.Flags().StringVar(&emailSubject, "subject", "", "subject line")
	jobsEnqueueEmailCmd.Flags().StringVar(&emailHTML, "html", "", "HTML body")
	jobsEnqueueEmailCmd.Flags().BoolVar(&emailNotify, "notify", false, "trigger the worker through redis right away")
	_ = jobsEnqueueEmailCmd.MarkFlagRequired("to")
	_ = jobsEnqueueEmailCmd.MarkFlagRequired("subject")

	jobsCmd.AddCommand(jobsProcessCmd, jobsDrainCmd, jobsEnqueueEmailCmd, jobsRequeueCmd, jobsStatsCmd)
}
