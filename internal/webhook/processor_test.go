package webhook_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"gradegate/internal/audit"
	"gradegate/internal/deadletter"
	"gradegate/internal/replay"
	replaystore "gradegate/internal/replay/store"
	"gradegate/internal/signature"
	sigstore "gradegate/internal/signature/store"
	"gradegate/internal/webhook"
	"gradegate/internal/webhook/mocks"
	dErrors "gradegate/pkg/domain-errors"
	"gradegate/pkg/platform/retry"
)

const testSecret = "test-webhook-secret"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// noSleep skips real backoff so exhaustion paths run instantly.
func noSleep() *retry.Executor {
	return retry.New(discardLogger(), retry.WithSleeper(func(context.Context, time.Duration) error {
		return nil
	}))
}

type ProcessorSuite struct {
	suite.Suite
	ctrl            *gomock.Controller
	mockSubmissions *mocks.MockSubmissionStore
	mockApplier     *mocks.MockGradingApplier
	mockNotifier    *mocks.MockNotifier
	auditStore      *audit.InMemoryStore
	sigLog          *sigstore.MemoryStore
	sink            *deadletter.InMemoryStore
	processor       *webhook.Processor
}

func TestProcessorSuite(t *testing.T) {
	suite.Run(t, new(ProcessorSuite))
}

func (s *ProcessorSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockSubmissions = mocks.NewMockSubmissionStore(s.ctrl)
	s.mockApplier = mocks.NewMockGradingApplier(s.ctrl)
	s.mockNotifier = mocks.NewMockNotifier(s.ctrl)
	s.auditStore = audit.NewInMemoryStore()
	s.sigLog = sigstore.NewMemoryStore()
	s.sink = deadletter.NewInMemoryStore()

	logger := discardLogger()
	guard, err := replay.New(replaystore.NewMemoryMarkerStore(), replay.DefaultConfig(), logger)
	s.Require().NoError(err)

	s.processor, err = webhook.NewProcessor(
		testSecret,
		s.sigLog,
		guard,
		audit.NewRecorder(s.auditStore, logger),
		s.mockSubmissions,
		s.mockApplier,
		s.sink,
		logger,
		webhook.WithNotifier(s.mockNotifier),
		webhook.WithExecutor(noSleep()),
	)
	s.Require().NoError(err)
}

func (s *ProcessorSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ProcessorSuite) body() []byte {
	return []byte(`{"submission_id":123,"score":85,"max_score":100,"feedback":"2 passed, 1 failed","timestamp":"` +
		time.Now().UTC().Format(time.RFC3339) + `"}`)
}

func (s *ProcessorSuite) sign(body []byte) string {
	return signature.Compute(body, testSecret)
}

func (s *ProcessorSuite) auditTypes(submissionID int64) []audit.EventType {
	events, err := s.auditStore.ListBySubmission(context.Background(), submissionID)
	s.Require().NoError(err)
	types := make([]audit.EventType, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}

func (s *ProcessorSuite) TestHappyPathFullTrail() {
	body := s.body()
	submission := &webhook.Submission{ID: 123, AssignmentID: 7, StudentID: 99}

	s.mockSubmissions.EXPECT().GetByID(gomock.Any(), int64(123)).Return(submission, nil)
	s.mockApplier.EXPECT().Apply(gomock.Any(), submission, 85.0, 100.0, "2 passed, 1 failed").Return(nil)
	s.mockNotifier.EXPECT().Notify(gomock.Any(), submission, 85.0, 100.0).Return(nil)

	s.Require().NoError(s.processor.Process(context.Background(), body, s.sign(body)))

	s.Equal([]audit.EventType{
		audit.EventReceived,
		audit.EventSignatureVerified,
		audit.EventReplayCheck,
		audit.EventSubmissionFound,
		audit.EventGradeApplied,
		audit.EventNotificationSent,
	}, s.auditTypes(123))
}

func (s *ProcessorSuite) TestInvalidSignatureRejectedBeforeCollaborators() {
	body := s.body()

	err := s.processor.Process(context.Background(), body, "deadbeef")
	s.Require().Error(err)
	s.Equal(dErrors.CodeUnauthorized, dErrors.CodeOf(err))

	s.Equal([]audit.EventType{audit.EventReceived, audit.EventError}, s.auditTypes(123))

	// The attempt is still in the forensic signature log.
	records, err := s.sigLog.ListBySubmission(context.Background(), 123)
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.False(records[0].IsValid)
}

func (s *ProcessorSuite) TestMissingSignatureRejected() {
	body := s.body()

	err := s.processor.Process(context.Background(), body, "")
	s.Require().Error(err)
	s.Equal(dErrors.CodeUnauthorized, dErrors.CodeOf(err))
}

func (s *ProcessorSuite) TestMalformedPayloadAfterValidSignature() {
	body := []byte(`{"submission_id":123,"score":"eighty"}`)

	err := s.processor.Process(context.Background(), body, s.sign(body))
	s.Require().Error(err)
	s.Equal(dErrors.CodeValidation, dErrors.CodeOf(err))

	s.Equal([]audit.EventType{
		audit.EventReceived,
		audit.EventSignatureVerified,
		audit.EventError,
	}, s.auditTypes(123))
}

func (s *ProcessorSuite) TestDuplicateDeliveryConflicts() {
	body := s.body()
	submission := &webhook.Submission{ID: 123}

	s.mockSubmissions.EXPECT().GetByID(gomock.Any(), int64(123)).Return(submission, nil)
	s.mockApplier.EXPECT().Apply(gomock.Any(), submission, 85.0, 100.0, gomock.Any()).Return(nil)
	s.mockNotifier.EXPECT().Notify(gomock.Any(), submission, 85.0, 100.0).Return(nil)

	s.Require().NoError(s.processor.Process(context.Background(), body, s.sign(body)))

	err := s.processor.Process(context.Background(), body, s.sign(body))
	s.Require().Error(err)
	s.Equal(dErrors.CodeReplay, dErrors.CodeOf(err))

	// No second grade_applied event.
	applied := 0
	for _, typ := range s.auditTypes(123) {
		if typ == audit.EventGradeApplied {
			applied++
		}
	}
	s.Equal(1, applied)
}

func (s *ProcessorSuite) TestUnknownSubmissionReleasesMarker() {
	body := s.body()

	notFound := dErrors.New(dErrors.CodeNotFound, "submission not found")
	s.mockSubmissions.EXPECT().GetByID(gomock.Any(), int64(123)).Return(nil, notFound).Times(2)

	err := s.processor.Process(context.Background(), body, s.sign(body))
	s.Require().Error(err)
	s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))

	// A redelivery is not treated as a replay: the marker was released.
	err = s.processor.Process(context.Background(), body, s.sign(body))
	s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
}

func (s *ProcessorSuite) TestTransientExhaustionParksDelivery() {
	body := s.body()
	submission := &webhook.Submission{ID: 123}

	s.mockSubmissions.EXPECT().GetByID(gomock.Any(), int64(123)).Return(submission, nil)
	s.mockApplier.EXPECT().Apply(gomock.Any(), submission, 85.0, 100.0, gomock.Any()).
		Return(dErrors.New(dErrors.CodeTransient, "grade store unreachable")).
		Times(3)

	// Still accepted: the sender already got its acknowledgement.
	s.Require().NoError(s.processor.Process(context.Background(), body, s.sign(body)))

	parked, err := s.sink.List(context.Background(), deadletter.StatusPending, 0)
	s.Require().NoError(err)
	s.Require().Len(parked, 1)
	s.Equal(int64(123), parked[0].SubmissionID)
	s.True(parked[0].IsTransient)
	s.True(parked[0].CanRetry())

	trail := s.auditTypes(123)
	s.Equal(audit.EventError, trail[len(trail)-1])
}

func (s *ProcessorSuite) TestPermanentApplierErrorParksWithoutRetry() {
	body := s.body()
	submission := &webhook.Submission{ID: 123}

	s.mockSubmissions.EXPECT().GetByID(gomock.Any(), int64(123)).Return(submission, nil)
	s.mockApplier.EXPECT().Apply(gomock.Any(), submission, 85.0, 100.0, gomock.Any()).
		Return(dErrors.New(dErrors.CodePermanent, "assignment closed")).
		Times(1)

	s.Require().NoError(s.processor.Process(context.Background(), body, s.sign(body)))

	parked, err := s.sink.List(context.Background(), deadletter.StatusPending, 0)
	s.Require().NoError(err)
	s.Require().Len(parked, 1)
	s.False(parked[0].IsTransient)
	s.False(parked[0].CanRetry())
}

func (s *ProcessorSuite) TestNotificationFailureDoesNotAffectOutcome() {
	body := s.body()
	submission := &webhook.Submission{ID: 123}

	s.mockSubmissions.EXPECT().GetByID(gomock.Any(), int64(123)).Return(submission, nil)
	s.mockApplier.EXPECT().Apply(gomock.Any(), submission, 85.0, 100.0, gomock.Any()).Return(nil)
	s.mockNotifier.EXPECT().Notify(gomock.Any(), submission, 85.0, 100.0).
		Return(dErrors.New(dErrors.CodeTransient, "mail relay down"))

	s.Require().NoError(s.processor.Process(context.Background(), body, s.sign(body)))

	trail := s.auditTypes(123)
	s.Contains(trail, audit.EventGradeApplied)
	s.Equal(audit.EventNotificationSent, trail[len(trail)-1])
}

func (s *ProcessorSuite) TestStaleTimestampRejected() {
	old := time.Now().UTC().Add(-301 * time.Second).Format(time.RFC3339)
	body := []byte(`{"submission_id":123,"score":85,"max_score":100,"feedback":"","timestamp":"` + old + `"}`)

	err := s.processor.Process(context.Background(), body, s.sign(body))
	s.Require().Error(err)
	s.Equal(dErrors.CodeStaleTimestamp, dErrors.CodeOf(err))
}

func (s *ProcessorSuite) TestApplyRedrivesParkedPayload() {
	body := s.body()
	submission := &webhook.Submission{ID: 123}

	s.mockSubmissions.EXPECT().GetByID(gomock.Any(), int64(123)).Return(submission, nil)
	s.mockApplier.EXPECT().Apply(gomock.Any(), submission, 85.0, 100.0, gomock.Any()).Return(nil)
	s.mockNotifier.EXPECT().Notify(gomock.Any(), submission, 85.0, 100.0).Return(nil)

	s.Require().NoError(s.processor.Apply(context.Background(), body))
	s.Contains(s.auditTypes(123), audit.EventGradeApplied)
}

// The stores below refuse writes once the context is done, the way the
// database/sql and go-redis backed stores behave in production. The
// deadline-expiry tests depend on that refusal: bookkeeping that reused the
// expired request context would fail against them.

type cancelAwareSink struct {
	*deadletter.InMemoryStore
}

func (s *cancelAwareSink) Record(ctx context.Context, record deadletter.FailedWebhook) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.InMemoryStore.Record(ctx, record)
}

type cancelAwareMarkers struct {
	inner replay.MarkerStore
}

func (m *cancelAwareMarkers) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return m.inner.Acquire(ctx, key, ttl)
}

func (m *cancelAwareMarkers) Release(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.inner.Release(ctx, key)
}

type cancelAwareTrail struct {
	*audit.InMemoryStore
}

func (s *cancelAwareTrail) Append(ctx context.Context, event audit.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.InMemoryStore.Append(ctx, event)
}

type deadlineFixture struct {
	processor *webhook.Processor
	sink      *cancelAwareSink
	trail     *cancelAwareTrail
}

func newDeadlineFixture(t *testing.T, submissions webhook.SubmissionStore, applier webhook.GradingApplier) *deadlineFixture {
	t.Helper()
	logger := discardLogger()

	markers := &cancelAwareMarkers{inner: replaystore.NewMemoryMarkerStore()}
	guard, err := replay.New(markers, replay.DefaultConfig(), logger)
	require.NoError(t, err)

	sink := &cancelAwareSink{InMemoryStore: deadletter.NewInMemoryStore()}
	trail := &cancelAwareTrail{InMemoryStore: audit.NewInMemoryStore()}

	processor, err := webhook.NewProcessor(
		testSecret,
		sigstore.NewMemoryStore(),
		guard,
		audit.NewRecorder(trail, logger),
		submissions,
		applier,
		sink,
		logger,
		webhook.WithExecutor(noSleep()),
	)
	require.NoError(t, err)
	return &deadlineFixture{processor: processor, sink: sink, trail: trail}
}

func TestDeadlineExpiryDuringApplyStillParksDelivery(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	submissions := mocks.NewMockSubmissionStore(ctrl)
	applier := mocks.NewMockGradingApplier(ctrl)
	f := newDeadlineFixture(t, submissions, applier)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	body := []byte(`{"submission_id":123,"score":85,"max_score":100,"feedback":"","timestamp":"` +
		time.Now().UTC().Format(time.RFC3339) + `"}`)
	submission := &webhook.Submission{ID: 123}

	submissions.EXPECT().GetByID(gomock.Any(), int64(123)).Return(submission, nil)
	// The request deadline expires while the applier is running.
	applier.EXPECT().Apply(gomock.Any(), submission, 85.0, 100.0, "").
		DoAndReturn(func(context.Context, *webhook.Submission, float64, float64, string) error {
			cancel()
			return dErrors.New(dErrors.CodeTransient, "grade store unreachable")
		})

	require.NoError(t, f.processor.Process(ctx, body, signature.Compute(body, testSecret)))

	// The park landed even though the request context was already done.
	parked, err := f.sink.List(context.Background(), deadletter.StatusPending, 0)
	require.NoError(t, err)
	require.Len(t, parked, 1)
	assert.Equal(t, int64(123), parked[0].SubmissionID)
	assert.True(t, parked[0].IsTransient)

	events, err := f.trail.ListBySubmission(context.Background(), 123)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, audit.EventError, events[len(events)-1].Type)
}

func TestDeadlineExpiryBeforeApplyReleasesMarker(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	submissions := mocks.NewMockSubmissionStore(ctrl)
	applier := mocks.NewMockGradingApplier(ctrl)
	f := newDeadlineFixture(t, submissions, applier)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	body := []byte(`{"submission_id":123,"score":85,"max_score":100,"feedback":"","timestamp":"` +
		time.Now().UTC().Format(time.RFC3339) + `"}`)
	submission := &webhook.Submission{ID: 123}

	// The deadline expires right after the lookup, before the applier runs.
	submissions.EXPECT().GetByID(gomock.Any(), int64(123)).
		DoAndReturn(func(context.Context, int64) (*webhook.Submission, error) {
			cancel()
			return submission, nil
		})

	err := f.processor.Process(ctx, body, signature.Compute(body, testSecret))
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeTimeout, dErrors.CodeOf(err))

	// Nothing was attempted, so nothing was parked.
	parked, listErr := f.sink.List(context.Background(), "", 0)
	require.NoError(t, listErr)
	assert.Empty(t, parked)

	// The marker was released despite the dead context: the sender's
	// redelivery must not bounce off a 409 for the whole dedup window.
	submissions.EXPECT().GetByID(gomock.Any(), int64(123)).Return(submission, nil)
	applier.EXPECT().Apply(gomock.Any(), submission, 85.0, 100.0, "").Return(nil)

	require.NoError(t, f.processor.Process(context.Background(), body, signature.Compute(body, testSecret)))
}
