package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/transcribe"
	transcribetypes "github.com/aws/aws-sdk-go-v2/service/transcribe/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"subforge/internal/subtitle"
	"subforge/pkg/log"
)

// AWSConfig configures the Amazon Transcribe variant.
type AWSConfig struct {
	Region string
	Bucket string
	// LanguageCode like "en-US"; empty enables automatic identification.
	LanguageCode string
	// PollInterval between job status checks; 10s by default.
	PollInterval time.Duration
}

type s3API interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type transcribeAPI interface {
	StartTranscriptionJob(ctx context.Context, input *transcribe.StartTranscriptionJobInput, opts ...func(*transcribe.Options)) (*transcribe.StartTranscriptionJobOutput, error)
	GetTranscriptionJob(ctx context.Context, input *transcribe.GetTranscriptionJobInput, opts ...func(*transcribe.Options)) (*transcribe.GetTranscriptionJobOutput, error)
}

// AWSTranscribe uploads the chunk to S3, runs an Amazon Transcribe job
// with SRT subtitle output, polls until it finishes and fetches the
// subtitle file back.
type AWSTranscribe struct {
	cfg        AWSConfig
	s3Client   s3API
	transcribe transcribeAPI
	logger     *log.Logger
}

func NewAWSTranscribe(cfg AWSConfig, s3Client s3API, transcribeClient transcribeAPI, logger *log.Logger) (*AWSTranscribe, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("S3 bucket is required for the AWS backend")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	return &AWSTranscribe{
		cfg:        cfg,
		s3Client:   s3Client,
		transcribe: transcribeClient,
		logger:     logger,
	}, nil
}

// NewAWSTranscribeFromEnv builds the variant from the default AWS
// credential chain.
func NewAWSTranscribeFromEnv(ctx context.Context, cfg AWSConfig, logger *log.Logger) (*AWSTranscribe, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationMissing, err)
	}
	if _, err := awsCfg.Credentials.Retrieve(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationMissing, err)
	}

	return NewAWSTranscribe(cfg, s3.NewFromConfig(awsCfg), transcribe.NewFromConfig(awsCfg), logger)
}

func (b *AWSTranscribe) Identity() Identity {
	return Identity{ID: "aws-transcribe", Model: "transcribe"}
}

func (b *AWSTranscribe) Transcribe(ctx context.Context, audioPath string, opts Options, progress ProgressFunc) ([]subtitle.Cue, error) {
	report := func(pct float64, msg string) {
		if progress != nil {
			progress(pct, msg)
		}
	}

	jobName := "subforge-" + uuid.NewString()
	mediaKey := "uploads/" + jobName + ".wav"
	subtitleKey := jobName + ".srt"

	report(0, "uploading audio to S3")
	if err := b.upload(ctx, audioPath, mediaKey); err != nil {
		return nil, err
	}
	defer b.cleanupObjects(mediaKey, subtitleKey)

	report(20, "starting transcription job")
	if err := b.startJob(ctx, jobName, mediaKey, opts); err != nil {
		return nil, err
	}

	if err := b.waitForJob(ctx, jobName, report); err != nil {
		return nil, err
	}

	report(90, "fetching transcript")
	cues, err := b.fetchSubtitles(ctx, subtitleKey)
	if err != nil {
		return nil, err
	}

	report(100, "transcription complete")
	return cues, nil
}

func (b *AWSTranscribe) upload(ctx context.Context, audioPath, mediaKey string) error {
	f, err := os.Open(audioPath)
	if err != nil {
		return fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	_, err = b.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &b.cfg.Bucket,
		Key:    &mediaKey,
		Body:   f,
	})
	if err != nil {
		return classifyAWSError("upload audio", err)
	}
	return nil
}

func (b *AWSTranscribe) startJob(ctx context.Context, jobName, mediaKey string, opts Options) error {
	mediaURI := fmt.Sprintf("s3://%s/%s", b.cfg.Bucket, mediaKey)
	input := &transcribe.StartTranscriptionJobInput{
		TranscriptionJobName: &jobName,
		MediaFormat:          transcribetypes.MediaFormatWav,
		Media: &transcribetypes.Media{
			MediaFileUri: &mediaURI,
		},
		OutputBucketName: &b.cfg.Bucket,
		Subtitles: &transcribetypes.Subtitles{
			Formats: []transcribetypes.SubtitleFormat{transcribetypes.SubtitleFormatSrt},
		},
	}

	languageCode := b.cfg.LanguageCode
	if opts.Language != "" {
		languageCode = opts.Language
	}
	if languageCode != "" {
		input.LanguageCode = transcribetypes.LanguageCode(languageCode)
	} else {
		identify := true
		input.IdentifyLanguage = &identify
	}

	if _, err := b.transcribe.StartTranscriptionJob(ctx, input); err != nil {
		return classifyAWSError("start transcription job", err)
	}
	return nil
}

func (b *AWSTranscribe) waitForJob(ctx context.Context, jobName string, report ProgressFunc) error {
	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			out, err := b.transcribe.GetTranscriptionJob(ctx, &transcribe.GetTranscriptionJobInput{
				TranscriptionJobName: &jobName,
			})
			if err != nil {
				return classifyAWSError("poll transcription job", err)
			}

			status := out.TranscriptionJob.TranscriptionJobStatus
			switch status {
			case transcribetypes.TranscriptionJobStatusCompleted:
				return nil
			case transcribetypes.TranscriptionJobStatusFailed:
				reason := "unknown reason"
				if out.TranscriptionJob.FailureReason != nil {
					reason = *out.TranscriptionJob.FailureReason
				}
				return &Error{Backend: "aws-transcribe", Message: "job failed: " + reason}
			default:
				report(55, fmt.Sprintf("job status: %s", status))
			}
		}
	}
}

func (b *AWSTranscribe) fetchSubtitles(ctx context.Context, subtitleKey string) ([]subtitle.Cue, error) {
	out, err := b.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &b.cfg.Bucket,
		Key:    &subtitleKey,
	})
	if err != nil {
		return nil, classifyAWSError("fetch subtitle output", err)
	}
	defer out.Body.Close()

	payload, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read subtitle output: %w", err)
	}

	cues, err := subtitle.ParseString(string(payload))
	if err != nil || len(cues) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrResultUnparseable, err)
	}
	return cues, nil
}

// cleanupObjects removes the uploaded media and subtitle output;
// best-effort, a stale object must not fail the transcription.
func (b *AWSTranscribe) cleanupObjects(keys ...string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, key := range keys {
		if _, err := b.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: &b.cfg.Bucket,
			Key:    &key,
		}); err != nil {
			b.logger.Warn("Failed to delete s3://%s/%s: %v", b.cfg.Bucket, key, err)
		}
	}
}

// classifyAWSError maps SDK errors onto the backend taxonomy. Throttling
// and service unavailability retry; everything else surfaces.
func classifyAWSError(action string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		transient := code == "ThrottlingException" ||
			code == "LimitExceededException" ||
			code == "ServiceUnavailableException" ||
			code == "InternalFailureException"
		return &Error{
			Backend:   "aws-transcribe",
			Message:   fmt.Sprintf("%s: %s: %s", action, code, apiErr.ErrorMessage()),
			Transient: transient,
		}
	}
	return fmt.Errorf("%s: %w", action, err)
}
