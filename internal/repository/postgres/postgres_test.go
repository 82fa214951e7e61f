package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/wa-outreach/internal/audience"
	"github.com/ignite/wa-outreach/internal/domain"
	"github.com/ignite/wa-outreach/internal/ingest"
	"github.com/ignite/wa-outreach/internal/service/campaign"
)

const (
	orgID      = "6f1c2a9e-8b0d-4a51-9a57-0d7d5f0e1a01"
	campaignID = "0b6f4a3c-2d1e-4f7a-8c9b-1a2b3c4d5e6f"
	runID      = "9d8c7b6a-5f4e-4d3c-8b2a-1f0e9d8c7b6a"
	targetID   = "3e2d1c0b-9a8f-4e7d-8c6b-5a4f3e2d1c0b"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func testCampaign() *domain.Campaign {
	return &domain.Campaign{
		ID:             campaignID,
		OrganizationID: orgID,
		Name:           "Boas-vindas",
		Channel:        domain.DefaultChannel,
		Segment:        domain.Segment{Audience: domain.AudienceSpec{Type: domain.AudienceAllContacts}},
		Message:        &domain.MessageConfig{Type: domain.MessageText, Body: "Olá {{first_name}}!"},
		Status:         domain.CampaignDraft,
	}
}

func expectMaterialize(mock sqlmock.Sqlmock, inserted int64) {
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO comms_campaign_runs .* 'scheduled'").
		WithArgs(orgID, campaignID, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(runID))
	mock.ExpectExec("INSERT INTO comms_campaign_targets .* ON CONFLICT DO NOTHING").
		WithArgs(runID, orgID, campaignID, orgID).
		WillReturnResult(sqlmock.NewResult(0, inserted))
	mock.ExpectExec("UPDATE comms_campaign_runs SET status = 'running'").
		WithArgs(runID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE comms_campaigns SET status = 'running'.*AND status <> 'archived'`).
		WithArgs(campaignID, orgID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
}

func TestMaterializeAndRun_Commits(t *testing.T) {
	db, mock := setupTestDB(t)
	expectMaterialize(mock, 3)

	frag, err := audience.Resolve(orgID, domain.AudienceSpec{Type: domain.AudienceAllContacts})
	require.NoError(t, err)

	res, err := NewMaterializer(db).MaterializeAndRun(context.Background(), testCampaign(), frag, domain.DefaultThrottle())
	require.NoError(t, err)
	assert.Equal(t, runID, res.RunID)
	assert.Equal(t, 3, res.Inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMaterializeAndRun_ConflictingTargetsInsertNothing(t *testing.T) {
	db, mock := setupTestDB(t)
	expectMaterialize(mock, 0)

	frag, err := audience.Resolve(orgID, domain.AudienceSpec{Type: domain.AudienceAllContacts})
	require.NoError(t, err)

	res, err := NewMaterializer(db).MaterializeAndRun(context.Background(), testCampaign(), frag, domain.DefaultThrottle())
	require.NoError(t, err)
	assert.Zero(t, res.Inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMaterializeAndRun_FailpointRollsBack(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO comms_campaign_runs").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(runID))
	mock.ExpectExec("INSERT INTO comms_campaign_targets").
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectRollback()

	boom := errors.New("crash after insert")
	m := NewMaterializer(db, FailpointAfterInsert(func() error { return boom }))

	frag, err := audience.Resolve(orgID, domain.AudienceSpec{Type: domain.AudienceAllContacts})
	require.NoError(t, err)

	res, err := m.MaterializeAndRun(context.Background(), testCampaign(), frag, domain.DefaultThrottle())
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, res)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertTargetsSQL_ShiftsFragmentBinds(t *testing.T) {
	frag, err := audience.Resolve(orgID, domain.AudienceSpec{Type: domain.AudienceAllContacts})
	require.NoError(t, err)

	q := insertTargetsSQL(frag.Shift(targetInsertArgs))
	assert.Contains(t, q, "c.org_id = $4")
	assert.Contains(t, q, "ON CONFLICT DO NOTHING")
	assert.NotContains(t, q, "c.org_id = $1")
}

func TestCountAudience(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectQuery("SELECT count").
		WithArgs(orgID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	frag, err := audience.Resolve(orgID, domain.AudienceSpec{Type: domain.AudienceAllContacts})
	require.NoError(t, err)

	n, err := NewMaterializer(db).CountAudience(context.Background(), frag)
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}

var campaignCols = []string{"id", "org_id", "name", "channel", "segment", "message", "throttle",
	"status", "created_by", "created_at", "updated_at"}

func TestLaunch_UnsupportedAudienceWritesNothing(t *testing.T) {
	db, mock := setupTestDB(t)
	now := time.Now()
	mock.ExpectQuery("SELECT .* FROM comms_campaigns WHERE id = \\$1 AND org_id = \\$2").
		WithArgs(campaignID, orgID).
		WillReturnRows(sqlmock.NewRows(campaignCols).AddRow(
			campaignID, orgID, "Legado", domain.DefaultChannel,
			[]byte(`{"type":"csv_upload","params":{}}`),
			[]byte(`{"type":"text","body":"Olá a todos"}`),
			nil, "draft", "", now, now))

	svc := campaign.NewService(NewCampaignRepo(db), NewRunRepo(db), NewMaterializer(db))
	_, err := svc.Launch(context.Background(), orgID, campaignID)

	var unsupported *domain.UnsupportedAudienceError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "csv_upload", unsupported.Type)
	// No BEGIN was expected, so any write would fail the expectations.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignRepo_MalformedIDIsNotFound(t *testing.T) {
	db, mock := setupTestDB(t)

	_, err := NewCampaignRepo(db).Get(context.Background(), orgID, "not-a-uuid")
	assert.ErrorIs(t, err, campaign.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignRepo_GetParsesLegacySegment(t *testing.T) {
	db, mock := setupTestDB(t)
	now := time.Now()
	mock.ExpectQuery("FROM comms_campaigns").
		WillReturnRows(sqlmock.NewRows(campaignCols).AddRow(
			campaignID, orgID, "Grupo", domain.DefaultChannel,
			[]byte(`{"type":"joined_group_recent","params":{"group_ref":"g1","days":7},"options":{"per_minute":12}}`),
			nil, nil, "scheduled", "ana", now, now))

	c, err := NewCampaignRepo(db).Get(context.Background(), orgID, campaignID)
	require.NoError(t, err)
	assert.Equal(t, domain.AudienceJoinedGroupRecent, c.Segment.Audience.Type)
	require.NotNil(t, c.Segment.Throttle)
	require.NotNil(t, c.Segment.Throttle.PerMinute)
	assert.Equal(t, 12, *c.Segment.Throttle.PerMinute)
	assert.Nil(t, c.Message)
}

var runCols = []string{"id", "org_id", "campaign_id", "status", "cfg", "started_at", "finished_at", "created_at"}

func TestRunRepo_TransitionApplies(t *testing.T) {
	db, mock := setupTestDB(t)
	now := time.Now()
	mock.ExpectQuery("UPDATE comms_campaign_runs .* status = ANY\\(\\$4\\)").
		WithArgs("paused", runID, orgID, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(runCols).AddRow(
			runID, orgID, campaignID, "paused", []byte(`{"per_minute":6}`), now, nil, now))

	run, err := NewRunRepo(db).Transition(context.Background(), orgID, runID,
		[]domain.RunStatus{domain.RunRunning}, domain.RunPaused)
	require.NoError(t, err)
	assert.Equal(t, domain.RunPaused, run.Status)
	assert.Equal(t, 6, run.FrozenConfig.PerMinute)
}

func TestRunRepo_TransitionWrongState(t *testing.T) {
	db, mock := setupTestDB(t)
	now := time.Now()
	mock.ExpectQuery("UPDATE comms_campaign_runs").
		WillReturnRows(sqlmock.NewRows(runCols))
	mock.ExpectQuery("SELECT .* FROM comms_campaign_runs WHERE id = \\$1").
		WithArgs(runID, orgID).
		WillReturnRows(sqlmock.NewRows(runCols).AddRow(
			runID, orgID, campaignID, "done", []byte(`{}`), now, now, now))

	_, err := NewRunRepo(db).Transition(context.Background(), orgID, runID,
		[]domain.RunStatus{domain.RunRunning}, domain.RunPaused)
	assert.ErrorIs(t, err, campaign.ErrInvalidTransition)
}

func TestRunRepo_TransitionMissingRun(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectQuery("UPDATE comms_campaign_runs").
		WillReturnRows(sqlmock.NewRows(runCols))
	mock.ExpectQuery("SELECT .* FROM comms_campaign_runs").
		WillReturnRows(sqlmock.NewRows(runCols))

	_, err := NewRunRepo(db).Transition(context.Background(), orgID, runID,
		[]domain.RunStatus{domain.RunRunning}, domain.RunPaused)
	assert.ErrorIs(t, err, campaign.ErrRunNotFound)
}

func TestStatusRepo_ActiveRuns(t *testing.T) {
	db, mock := setupTestDB(t)
	now := time.Now()
	cols := []string{"id", "campaign_id", "org_id", "name", "channel", "status",
		"queued", "sending", "sent_or_better", "failed", "last_event_at", "updated_at"}
	mock.ExpectQuery("FROM comms_campaign_runs r").
		WithArgs(orgID, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(runID, campaignID, orgID, "Boas-vindas", domain.DefaultChannel, "scheduled", 4, 1, 2, 0, now, now).
			AddRow(targetID, campaignID, orgID, "Reengajar", domain.DefaultChannel, "running", 0, 0, 0, 0, nil, now))

	out, err := NewStatusRepo(db).ActiveRuns(context.Background(), orgID)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 4, out[0].Queued)
	assert.Equal(t, 2, out[0].SentOrBetter)
	require.NotNil(t, out[0].LastEventAt)
	assert.Nil(t, out[1].LastEventAt)
}

func TestStatusRepo_RecentRecipients(t *testing.T) {
	db, mock := setupTestDB(t)
	now := time.Now()
	cols := []string{"target_id", "contact_id", "display_name", "wa_user_id", "phone_e164",
		"status_domain", "status_code", "event_at"}
	mock.ExpectQuery("WITH sent AS").
		WithArgs(runID, orgID, 10).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(targetID, "c-1", "Ana", "5511999990000", "+5511999990000", "event", "sent", now).
			AddRow(runID, nil, "", "5511988880000", nil, "target", "queued", nil))

	out, err := NewStatusRepo(db).RecentRecipients(context.Background(), orgID, runID, 10)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, domain.DomainEvent, out[0].StatusDomain)
	require.NotNil(t, out[0].ContactID)
	require.NotNil(t, out[0].EventAt)
	assert.Nil(t, out[1].ContactID)
	assert.Nil(t, out[1].PhoneE164)
	assert.Nil(t, out[1].EventAt)
}

func TestPresetRepo_ListPresets(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectQuery("SELECT DISTINCT ON \\(key\\)").
		WithArgs(orgID).
		WillReturnRows(sqlmock.NewRows([]string{"key", "label", "params"}).
			AddRow("all", "Todos os contatos", []byte(`{"type":"all_contacts"}`)).
			AddRow("group_7d", "Entraram no grupo (7 dias)",
				[]byte(`{"audience":{"type":"joined_group_recent","params":{"group_ref":"<WA_GROUP_ID>","days":7}}}`)))

	out, err := NewPresetRepo(db).ListPresets(context.Background(), orgID)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, domain.AudienceAllContacts, out[0].Audience.Type)
	assert.True(t, out[1].Audience.HasPlaceholderGroup())
}

func TestPresetRepo_FindGroup(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectQuery("FROM wpp_groups WHERE org_id = \\$1 ORDER BY created_at DESC").
		WithArgs(orgID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "wa_group_id", "subject"}).
			AddRow(targetID, "1203630@g.us", "Clientes VIP"))
	mock.ExpectQuery("FROM wpp_groups WHERE org_id = \\$1 AND").
		WithArgs(orgID, "missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "wa_group_id", "subject"}))

	repo := NewPresetRepo(db)
	g, err := repo.FindGroup(context.Background(), orgID, "")
	require.NoError(t, err)
	assert.Equal(t, "Clientes VIP", g.Subject)

	_, err = repo.FindGroup(context.Background(), orgID, "missing")
	assert.ErrorIs(t, err, campaign.ErrNotFound)
}

func TestInboxRepo_InsertDeduplicates(t *testing.T) {
	db, mock := setupTestDB(t)
	now := time.Now()
	mock.ExpectQuery("INSERT INTO comms_inbound_events .* ON CONFLICT \\(payload_hash\\) DO NOTHING").
		WillReturnRows(sqlmock.NewRows([]string{"id", "received_at"}).AddRow(7, now))
	mock.ExpectQuery("INSERT INTO comms_inbound_events").
		WillReturnRows(sqlmock.NewRows([]string{"id", "received_at"}))

	repo := NewInboxRepo(db)
	ev := &domain.InboundEvent{OrgID: orgID, Source: ingest.SourceDispatcher, EventType: "sent", PayloadHash: "abc", Raw: []byte(`{}`)}

	fresh, err := repo.Insert(context.Background(), ev)
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.Equal(t, int64(7), ev.ID)

	dup := *ev
	fresh, err = repo.Insert(context.Background(), &dup)
	require.NoError(t, err)
	assert.False(t, fresh)
}

func TestInboxRepo_ProjectAdvancesTarget(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO comms_campaign_events .* WHERE EXISTS").
		WithArgs(runID, targetID, "delivered", sqlmock.AnyArg(), orgID, sql.NullTime{}).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE comms_campaign_targets SET status = \\$1").
		WithArgs("delivered", targetID, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE comms_inbound_events SET processed_at").
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := NewInboxRepo(db).Project(context.Background(), 7, orgID, domain.DeliveryEvent{
		RunID: runID, TargetID: targetID, Kind: domain.EventDelivered,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInboxRepo_ProjectStoresDispatcherTime(t *testing.T) {
	db, mock := setupTestDB(t)
	sentAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO comms_campaign_events .*occurred_at.* COALESCE\(\$6::timestamptz, now\(\)\)`).
		WithArgs(runID, targetID, "sent", sqlmock.AnyArg(), orgID, sql.NullTime{Time: sentAt, Valid: true}).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE comms_campaign_targets SET status = \\$1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE comms_inbound_events SET processed_at").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := NewInboxRepo(db).Project(context.Background(), 8, orgID, domain.DeliveryEvent{
		RunID: runID, TargetID: targetID, Kind: domain.EventSent,
		Meta: map[string]any{"ts": "2026-03-01T12:00:00Z"}, OccurredAt: &sentAt,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatusRepo_RecentRecipientsOrdersOnStoredTime(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectQuery(`e.occurred_at AS event_at.*ORDER BY e.occurred_at DESC`).
		WithArgs(runID, orgID, 5).
		WillReturnRows(sqlmock.NewRows([]string{"target_id", "contact_id", "display_name", "wa_user_id",
			"phone_e164", "status_domain", "status_code", "event_at"}))

	out, err := NewStatusRepo(db).RecentRecipients(context.Background(), orgID, runID, 5)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.NotContains(t, recentRecipientsSQL, "meta->>'ts'")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInboxRepo_ProjectUnknownTarget(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO comms_campaign_events").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := NewInboxRepo(db).Project(context.Background(), 7, orgID, domain.DeliveryEvent{
		RunID: runID, TargetID: targetID, Kind: domain.EventSent,
	})
	assert.ErrorIs(t, err, ingest.ErrUnknownTarget)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInboxRepo_PendingAndMarkFailed(t *testing.T) {
	db, mock := setupTestDB(t)
	now := time.Now()
	mock.ExpectQuery("WHERE processed_at IS NULL AND error IS NULL").
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "org_id", "source", "event_type", "payload_hash", "raw_json", "received_at"}).
			AddRow(1, orgID, ingest.SourceDispatcher, "sent", "h1", []byte(`{}`), now))
	mock.ExpectExec("UPDATE comms_inbound_events SET processed_at = now\\(\\), error = \\$2").
		WithArgs(int64(1), "unknown_target").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewInboxRepo(db)
	pending, err := repo.Pending(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NoError(t, repo.MarkFailed(context.Background(), pending[0].ID, "unknown_target"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
