package records

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/famledger/internal/clients/github"
	"github.com/aristath/famledger/internal/domain"
	"github.com/aristath/famledger/internal/secrets"
	testutil "github.com/aristath/famledger/internal/testing"
)

const testDataPath = "data/data.json"

type staticCreds string

func (c staticCreds) Resolve(context.Context) (secrets.Credential, bool) {
	if c == "" {
		return secrets.Credential{}, false
	}
	return secrets.Credential{Token: string(c), Source: secrets.SourceConfig}, true
}

type mirrorFixture struct {
	fake  *testutil.FakeGitHub
	local *JSONFileBackend
	store *MirrorStore
}

func newMirrorFixture(t *testing.T, creds staticCreds, localOnly bool) *mirrorFixture {
	t.Helper()
	fake := testutil.NewFakeGitHub(t)
	client := github.NewClient(github.Options{
		BaseURL: fake.URL(),
		Owner:   "family",
		Repo:    "ledger",
		Timeout: 300 * time.Millisecond,
	}, zerolog.Nop())
	local := NewJSONFileBackend(filepath.Join(t.TempDir(), "data.json"))
	store := NewMirrorStore(MirrorStoreConfig{
		Local:     local,
		Remote:    client,
		Path:      testDataPath,
		Creds:     creds,
		LocalOnly: localOnly,
	}, zerolog.Nop())
	return &mirrorFixture{fake: fake, local: local, store: store}
}

func remoteDocument(t *testing.T, records []domain.Record) []byte {
	t.Helper()
	data, err := encodeDataFile(records)
	require.NoError(t, err)
	return data
}

func remoteRecords(t *testing.T, fake *testutil.FakeGitHub) []domain.Record {
	t.Helper()
	raw, ok := fake.File(testDataPath)
	require.True(t, ok, "remote file should exist")
	var doc dataFile
	require.NoError(t, json.Unmarshal(raw, &doc))
	return doc.Records
}

func TestMirrorStore_LoadPrefersRemote(t *testing.T) {
	fx := newMirrorFixture(t, "ghp_testtoken_0123456789", false)
	fixtures := testutil.NewRecordFixtures()
	fx.fake.SetFile(testDataPath, remoteDocument(t, fixtures))
	require.NoError(t, fx.local.Write(context.Background(), fixtures[:1]))

	res := fx.store.Load(context.Background())
	assert.Equal(t, LocationRemote, res.Location)
	assert.Equal(t, fixtures, res.Records)
}

func TestMirrorStore_LoadFallsBackToLocal(t *testing.T) {
	cases := []struct {
		name  string
		setup func(f *testutil.FakeGitHub)
	}{
		{"unauthorized", func(f *testutil.FakeGitHub) { f.FailWith(http.StatusUnauthorized) }},
		{"server error", func(f *testutil.FakeGitHub) { f.FailWith(http.StatusInternalServerError) }},
		{"missing file", func(f *testutil.FakeGitHub) {}},
		{"timeout", func(f *testutil.FakeGitHub) { f.Delay(2 * time.Second) }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newMirrorFixture(t, "ghp_testtoken_0123456789", false)
			fixtures := testutil.NewRecordFixtures()
			require.NoError(t, fx.local.Write(context.Background(), fixtures))
			tc.setup(fx.fake)

			res := fx.store.Load(context.Background())
			assert.Equal(t, LocationLocal, res.Location)
			assert.Equal(t, fixtures, res.Records)
		})
	}
}

func TestMirrorStore_LoadEmptyEverywhere(t *testing.T) {
	fx := newMirrorFixture(t, "", false)

	res := fx.store.Load(context.Background())
	assert.Equal(t, LocationLocal, res.Location)
	assert.NotNil(t, res.Records)
	assert.Empty(t, res.Records)
}

func TestMirrorStore_LoadCanonicalizesDates(t *testing.T) {
	fx := newMirrorFixture(t, "ghp_testtoken_0123456789", false)
	fx.fake.SetFile(testDataPath, []byte(`[{"id":"a","member":"Dad","type":"expense","amount":5,"mainCategory":"food","date":"2025/9/1"}]`))

	res := fx.store.Load(context.Background())
	require.Len(t, res.Records, 1)
	assert.Equal(t, "2025-09-01", res.Records[0].Date)
}

func TestMirrorStore_SaveCreatesRemoteFileAndWritesThrough(t *testing.T) {
	fx := newMirrorFixture(t, "ghp_testtoken_0123456789", false)
	fixtures := testutil.NewRecordFixtures()

	res, err := fx.store.Save(context.Background(), fixtures)
	require.NoError(t, err)
	assert.Equal(t, LocationRemote, res.Location)
	assert.Equal(t, len(fixtures), res.Count)
	assert.NotEmpty(t, res.CommitSHA)
	assert.Equal(t, fixtures, remoteRecords(t, fx.fake))

	local, err := fx.local.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fixtures, local)
}

func TestMirrorStore_ConsecutiveSavesReuseSHA(t *testing.T) {
	fx := newMirrorFixture(t, "ghp_testtoken_0123456789", false)
	fixtures := testutil.NewRecordFixtures()
	ctx := context.Background()

	_, err := fx.store.Save(ctx, fixtures[:2])
	require.NoError(t, err)
	_, err = fx.store.Save(ctx, fixtures)
	require.NoError(t, err)

	assert.Equal(t, 2, fx.fake.Puts())
	assert.Equal(t, fixtures, remoteRecords(t, fx.fake))
}

func TestMirrorStore_SaveConflict(t *testing.T) {
	fx := newMirrorFixture(t, "ghp_testtoken_0123456789", false)
	fixtures := testutil.NewRecordFixtures()
	ctx := context.Background()

	fx.fake.SetFile(testDataPath, remoteDocument(t, fixtures[:1]))
	fx.store.Load(ctx)

	// another device writes after our read
	fx.fake.SetFile(testDataPath, remoteDocument(t, fixtures[:2]))

	_, err := fx.store.Save(ctx, fixtures)
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, fixtures[:2], remoteRecords(t, fx.fake), "the other writer's data must survive")

	// a fresh read picks up the new sha and the save goes through
	fx.store.Load(ctx)
	_, err = fx.store.Save(ctx, fixtures)
	require.NoError(t, err)
	assert.Equal(t, fixtures, remoteRecords(t, fx.fake))
}

func TestMirrorStore_SaveFallsBackToLocal(t *testing.T) {
	cases := []struct {
		name  string
		creds staticCreds
		setup func(f *testutil.FakeGitHub)
	}{
		{"no credential", "", func(f *testutil.FakeGitHub) {}},
		{"unauthorized", "ghp_testtoken_0123456789", func(f *testutil.FakeGitHub) { f.FailWith(http.StatusUnauthorized) }},
		{"server error", "ghp_testtoken_0123456789", func(f *testutil.FakeGitHub) { f.FailWith(http.StatusBadGateway) }},
		{"timeout", "ghp_testtoken_0123456789", func(f *testutil.FakeGitHub) { f.Delay(2 * time.Second) }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newMirrorFixture(t, tc.creds, false)
			tc.setup(fx.fake)
			fixtures := testutil.NewRecordFixtures()

			res, err := fx.store.Save(context.Background(), fixtures)
			require.NoError(t, err)
			assert.Equal(t, LocationLocal, res.Location)

			local, err := fx.local.Read(context.Background())
			require.NoError(t, err)
			assert.Equal(t, fixtures, local)
		})
	}
}

func TestMirrorStore_LocalOnlyNeverTouchesRemote(t *testing.T) {
	fx := newMirrorFixture(t, "ghp_testtoken_0123456789", true)
	fixtures := testutil.NewRecordFixtures()
	fx.fake.SetFile(testDataPath, remoteDocument(t, fixtures[:1]))

	assert.False(t, fx.store.RemoteAvailable(context.Background()))

	res, err := fx.store.Save(context.Background(), fixtures)
	require.NoError(t, err)
	assert.Equal(t, LocationLocal, res.Location)
	assert.Equal(t, 0, fx.fake.Puts())

	loaded := fx.store.Load(context.Background())
	assert.Equal(t, LocationLocal, loaded.Location)
	assert.Equal(t, fixtures, loaded.Records)
}

func TestMirrorStore_RemoteRecoversAfterOutage(t *testing.T) {
	fx := newMirrorFixture(t, "ghp_testtoken_0123456789", false)
	fixtures := testutil.NewRecordFixtures()
	ctx := context.Background()

	fx.fake.FailWith(http.StatusServiceUnavailable)
	res, err := fx.store.Save(ctx, fixtures[:3])
	require.NoError(t, err)
	assert.Equal(t, LocationLocal, res.Location)

	fx.fake.FailWith(0)
	res, err = fx.store.Save(ctx, fixtures)
	require.NoError(t, err)
	assert.Equal(t, LocationRemote, res.Location)
	assert.Equal(t, fixtures, remoteRecords(t, fx.fake))
}

func TestMirrorStore_PendingMergesRemoteAdditions(t *testing.T) {
	fx := newMirrorFixture(t, "ghp_testtoken_0123456789", false)
	fixtures := testutil.NewRecordFixtures()
	ctx := context.Background()

	_, err := fx.store.Save(ctx, fixtures[:2])
	require.NoError(t, err)

	// Offline: drop fixtures[1], add fixtures[2].
	fx.fake.FailWith(http.StatusServiceUnavailable)
	res, err := fx.store.Save(ctx, []domain.Record{fixtures[0], fixtures[2]})
	require.NoError(t, err)
	assert.Equal(t, LocationLocal, res.Location)

	// Another device added fixtures[3] meanwhile.
	fx.fake.FailWith(0)
	fx.fake.SetFile(testDataPath, remoteDocument(t, []domain.Record{fixtures[0], fixtures[1], fixtures[3]}))

	loaded := fx.store.Load(ctx)
	assert.Equal(t, LocationRemote, loaded.Location)
	assert.Equal(t, []string{fixtures[0].ID, fixtures[2].ID, fixtures[3].ID}, recordIDs(loaded.Records))
	assert.Equal(t, recordIDs(loaded.Records), recordIDs(remoteRecords(t, fx.fake)))
	assert.False(t, fx.store.Pending())

	local, err := fx.local.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, recordIDs(loaded.Records), recordIDs(local))
}

func TestMirrorStore_PendingStaysWhileRemoteDown(t *testing.T) {
	fx := newMirrorFixture(t, "ghp_testtoken_0123456789", false)
	fixtures := testutil.NewRecordFixtures()
	ctx := context.Background()

	fx.fake.FailWith(http.StatusInternalServerError)
	_, err := fx.store.Save(ctx, fixtures)
	require.NoError(t, err)

	loaded := fx.store.Load(ctx)
	assert.Equal(t, LocationLocal, loaded.Location)
	assert.Equal(t, fixtures, loaded.Records)
	assert.True(t, fx.store.Pending())
}

func TestMirrorStore_PendingMarkerSurvivesRestart(t *testing.T) {
	fx := newMirrorFixture(t, "ghp_testtoken_0123456789", false)
	fixtures := testutil.NewRecordFixtures()
	ctx := context.Background()
	client := github.NewClient(github.Options{BaseURL: fx.fake.URL(), Owner: "family", Repo: "ledger"}, zerolog.Nop())
	marker := filepath.Join(t.TempDir(), "records.pending.json")

	newStore := func() *MirrorStore {
		return NewMirrorStore(MirrorStoreConfig{
			Local:       fx.local,
			Remote:      client,
			Path:        testDataPath,
			Creds:       staticCreds("ghp_testtoken_0123456789"),
			PendingPath: marker,
		}, zerolog.Nop())
	}

	fx.fake.SetFile(testDataPath, remoteDocument(t, fixtures[:1]))
	fx.fake.FailWith(http.StatusBadGateway)
	_, err := newStore().Save(ctx, fixtures[:3])
	require.NoError(t, err)
	assert.FileExists(t, marker)

	fx.fake.FailWith(0)
	restarted := newStore()
	require.True(t, restarted.Pending())

	loaded := restarted.Load(ctx)
	assert.Equal(t, LocationRemote, loaded.Location)
	assert.Equal(t, recordIDs(fixtures[:3]), recordIDs(remoteRecords(t, fx.fake)))
	assert.NoFileExists(t, marker)
}

func TestMirrorStore_LocalOnlyNeverPending(t *testing.T) {
	fx := newMirrorFixture(t, "ghp_testtoken_0123456789", true)
	_, err := fx.store.Save(context.Background(), testutil.NewRecordFixtures())
	require.NoError(t, err)
	assert.False(t, fx.store.Pending())
}
