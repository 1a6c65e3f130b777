package tui

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	CubbyholePath = "cubbyhole/job"
	WrapTTL       = 300 * time.Second
	DefaultRole   = "gostint-role"
)

var (
	// apiTokenRequest is good for exactly the one job POST.
	apiTokenRequest = TokenRequest{
		Policies:    []string{"default"},
		TTL:         "1h",
		NumUses:     1,
		DisplayName: "gostint_ui",
	}
	// cubbyTokenRequest covers our write plus gostint's read.
	cubbyTokenRequest = TokenRequest{
		Policies:    []string{"default"},
		TTL:         "1h",
		NumUses:     2,
		DisplayName: "gostint_cubbyhole",
	}
)

// StepError names the submission step that failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

type SubmitResult struct {
	Job   *SubmitResponse
	Steps []string
}

type submission struct {
	primary string
	role    string
	job     JobRequest

	apiToken     string
	secretID     map[string]any
	wrapSecretID string
	ciphertext   string
	cubbyToken   string
	response     *SubmitResponse
}

type submitStep struct {
	name string
	run  func(context.Context, *submission) error
}

type Submitter struct {
	Vault   SecretsBackend
	Gostint JobBackend
	Logger  *zap.Logger
}

func NewSubmitter(vault SecretsBackend, gostint JobBackend, logger *zap.Logger) *Submitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Submitter{Vault: vault, Gostint: gostint, Logger: logger}
}

// steps run strictly in order. The primary credential is only ever handed
// to vault; gostint sees the step one token and references.
func (s *Submitter) steps() []submitStep {
	return []submitStep{
		{"create-api-token", func(ctx context.Context, sub *submission) (err error) {
			sub.apiToken, err = s.Vault.CreateToken(ctx, sub.primary, apiTokenRequest)
			return err
		}},
		{"approle-secret-id", func(ctx context.Context, sub *submission) (err error) {
			sub.secretID, err = s.Vault.AppRoleSecretID(ctx, sub.primary, sub.role)
			return err
		}},
		{"wrap-secret-id", func(ctx context.Context, sub *submission) (err error) {
			sub.wrapSecretID, err = s.Vault.Wrap(ctx, sub.primary, sub.secretID, WrapTTL)
			return err
		}},
		{"encrypt-job", func(ctx context.Context, sub *submission) error {
			raw, err := json.Marshal(sub.job)
			if err != nil {
				return err
			}
			sub.ciphertext, err = s.Vault.TransitEncrypt(ctx, sub.primary, sub.role, base64.StdEncoding.EncodeToString(raw))
			return err
		}},
		{"create-cubby-token", func(ctx context.Context, sub *submission) (err error) {
			sub.cubbyToken, err = s.Vault.CreateToken(ctx, sub.primary, cubbyTokenRequest)
			return err
		}},
		{"write-cubbyhole", func(ctx context.Context, sub *submission) error {
			return s.Vault.CubbyholeWrite(ctx, sub.cubbyToken, CubbyholePath, sub.ciphertext)
		}},
		{"submit-job", func(ctx context.Context, sub *submission) (err error) {
			sub.response, err = s.Gostint.SubmitJob(ctx, sub.apiToken, JobWrapper{
				QName:        sub.job.QName,
				CubbyToken:   sub.cubbyToken,
				CubbyPath:    CubbyholePath,
				WrapSecretID: sub.wrapSecretID,
			})
			return err
		}},
	}
}

// Submit runs the credential wrapping chain for one job. The first failing
// step ends the attempt; nothing is retried.
func (s *Submitter) Submit(ctx context.Context, sess Session, spec JobSpec, role string) (*SubmitResult, error) {
	if strings.TrimSpace(sess.Token) == "" {
		return nil, errors.New("no active session")
	}
	role = strings.TrimSpace(role)
	if role == "" {
		return nil, errors.New("gostint AppRole name is required")
	}
	job, err := spec.Request()
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	log := s.Logger.With(zap.String("submission", id), zap.String("role", role), zap.String("image", job.ContainerImage))
	log.Info("Submitting job")

	sub := &submission{primary: sess.Token, role: role, job: job}
	result := &SubmitResult{}
	for _, step := range s.steps() {
		start := time.Now()
		if err := step.run(ctx, sub); err != nil {
			log.Warn("Submission step failed", zap.String("step", step.name), zap.Error(err))
			return result, &StepError{Step: step.name, Err: err}
		}
		log.Debug("Submission step completed", zap.String("step", step.name), zap.Duration("took", time.Since(start)))
		result.Steps = append(result.Steps, step.name)
	}

	result.Job = sub.response
	log.Info("Job submitted", zap.String("job_id", sub.response.ID), zap.String("status", string(sub.response.Status)))
	return result, nil
}
