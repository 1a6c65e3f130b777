package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/goethite/gostint-tui/internal/observability"
	"github.com/goethite/gostint-tui/internal/tui"
)

var (
	submitFile       string
	submitImage      string
	submitRun        string
	submitEntrypoint string
	submitWorkdir    string
	submitQName      string
	submitPull       string
	submitContent    string
	submitSecretType string
	submitEnv        []string
	submitSecrets    []string
	submitContinue   bool
	submitWait       bool
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a job",
	Long: `Submit a job to gostint. The job comes from a YAML file, from flags, or
from both; flags win over the file.

Examples:
  gostint-tui submit -f job.yaml
  gostint-tui submit --image alpine:3.19 --run 'echo hi' --env A=1 --wait
  gostint-tui submit --image alpine --run 'cat /secrets.yaml' --secret db@secret/db`,
	Args: cobra.NoArgs,
	RunE: runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)
	f := submitCmd.Flags()
	f.StringVarP(&submitFile, "file", "f", "", "YAML job file")
	f.StringVar(&submitImage, "image", "", "container image")
	f.StringVar(&submitRun, "run", "", "command to run, shell quoted")
	f.StringVar(&submitEntrypoint, "entrypoint", "", "entrypoint override, shell quoted")
	f.StringVar(&submitWorkdir, "workdir", "", "working directory in the container")
	f.StringVar(&submitQName, "qname", "", "gostint queue")
	f.StringVar(&submitPull, "pull", "", "image pull policy (IfNotPresent, Always)")
	f.StringVar(&submitContent, "content", "", "gzipped tarball to inject into the container")
	f.StringVar(&submitSecretType, "secret-file-type", "", "secret file format (yaml, json)")
	f.StringArrayVar(&submitEnv, "env", nil, "environment variable KEY=value (repeatable)")
	f.StringArrayVar(&submitSecrets, "secret", nil, "secret reference ref@path (repeatable)")
	f.BoolVar(&submitContinue, "continue-on-warnings", false, "keep running after warnings")
	f.BoolVar(&submitWait, "wait", false, "follow the job until it finishes")
}

// buildSpec merges the job file with the flags that were given.
func buildSpec(cmd *cobra.Command) (tui.JobSpec, error) {
	var spec tui.JobSpec
	if submitFile != "" {
		loaded, err := tui.LoadJobFile(submitFile)
		if err != nil {
			return spec, err
		}
		spec = loaded
	}

	set := func(flag string, dst *string, val string) {
		if cmd.Flags().Changed(flag) {
			*dst = val
		}
	}
	set("image", &spec.ContainerImage, submitImage)
	set("run", &spec.Run, submitRun)
	set("entrypoint", &spec.EntryPoint, submitEntrypoint)
	set("workdir", &spec.WorkingDir, submitWorkdir)
	set("qname", &spec.QName, submitQName)
	set("pull", &spec.ImagePullPolicy, submitPull)
	set("secret-file-type", &spec.SecretFileType, submitSecretType)
	if cmd.Flags().Changed("continue-on-warnings") {
		spec.ContOnWarnings = submitContinue
	}

	if submitContent != "" {
		content, err := tui.LoadContent(submitContent)
		if err != nil {
			return spec, fmt.Errorf("%s: %w", submitContent, err)
		}
		spec.Content = content
	}

	for _, raw := range submitEnv {
		kv, err := tui.ParseKV(raw, "=")
		if err != nil {
			return spec, err
		}
		if spec.EnvVars, err = spec.EnvVars.Apply(tui.KVAdd{Pair: kv}); err != nil {
			return spec, err
		}
	}
	for _, raw := range submitSecrets {
		kv, err := tui.ParseKV(raw, "@")
		if err != nil {
			return spec, err
		}
		if spec.SecretRefs, err = spec.SecretRefs.Apply(tui.KVAdd{Pair: kv}); err != nil {
			return spec, err
		}
	}
	return spec, nil
}

func runSubmit(cmd *cobra.Command, args []string) error {
	spec, err := buildSpec(cmd)
	if err != nil {
		return err
	}
	if err := spec.Validate(); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	sess, clients, err := login(ctx)
	if err != nil {
		return err
	}

	sub := tui.NewSubmitter(clients.Vault, clients.Gostint, observability.CLILogger)
	result, err := sub.Submit(ctx, sess, spec, cfg.Vault.Role)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "job %s %s\n", result.Job.ID, result.Job.Status)
	if !submitWait {
		return nil
	}
	return followJob(ctx, out, cmd.ErrOrStderr(), clients.Gostint, sess, result.Job.ID)
}

// followJob prints each status change and the output once the job ends.
func followJob(ctx context.Context, out, errOut io.Writer, jobs *tui.GostintClient, sess tui.Session, id string) error {
	last := tui.JobStatus("")
	job, err := tui.WatchJob(ctx, jobs, sess.APIToken, id, cfg.UI.PollInterval, func(j *tui.JobResult) {
		if j.Status != last {
			last = j.Status
			_, _ = fmt.Fprintf(out, "job %s %s\n", j.ID, j.Status)
		}
	})
	if err != nil {
		return err
	}

	observability.CLILogger.Debug("Job finished",
		zap.String("job_id", job.ID),
		zap.String("status", string(job.Status)),
		zap.Int("return_code", job.ReturnCode))
	if job.Output != "" {
		_, _ = fmt.Fprint(out, ensureNewline(job.Output))
	}
	if job.Stderr != "" {
		_, _ = fmt.Fprint(errOut, ensureNewline(job.Stderr))
	}
	if job.Status != tui.StatusSuccess {
		return fmt.Errorf("job %s ended %s with return code %d", job.ID, job.Status, job.ReturnCode)
	}
	return nil
}

func ensureNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
