package incoming

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/homebase-id/odin-core-sub020/internal/authz"
	"github.com/homebase-id/odin-core-sub020/internal/connections"
	"github.com/homebase-id/odin-core-sub020/internal/cryptox"
	"github.com/homebase-id/odin-core-sub020/internal/drive"
	"github.com/homebase-id/odin-core-sub020/internal/identity"
	"github.com/homebase-id/odin-core-sub020/internal/logging"
	"github.com/homebase-id/odin-core-sub020/internal/migrations"
	"github.com/homebase-id/odin-core-sub020/internal/notifications"
	"github.com/homebase-id/odin-core-sub020/internal/peer"
)

const (
	senderAlice = identity.ID("alice.example.com")
	senderBob   = identity.ID("bob.example.com")
)

type testEnv struct {
	db       *sql.DB
	temp     *drive.TempStore
	payloads drive.PayloadStore
	store    *drive.Store
	queue    *Queue
	sessions *SessionStore
	coord    *Coordinator
	drv      *drive.Drive
	secrets  map[identity.ID][]byte
	log      logging.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "node.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	goose.SetBaseFS(migrations.Migrations)
	require.NoError(t, goose.SetDialect("sqlite3"))
	require.NoError(t, goose.UpContext(context.Background(), db, "."))

	env := &testEnv{
		db:       db,
		temp:     drive.NewTempStore(filepath.Join(t.TempDir(), "temp")),
		payloads: drive.NewLocalPayloadStore(filepath.Join(t.TempDir(), "payloads")),
		sessions: NewSessionStore(),
		queue:    NewQueue(db),
		secrets:  make(map[identity.ID][]byte),
		log:      logging.NewJSON(io.Discard),
	}
	env.store = drive.NewStore(db, env.temp, env.payloads)
	env.drv = env.newDrive(t, "chat", false)
	env.connect(t, senderAlice)
	env.connect(t, senderBob)

	env.coord = NewCoordinator(db, env.sessions, env.temp, env.payloads, env.queue,
		notifications.NewLogDispatcher(env.log), env.log)
	return env
}

func (e *testEnv) newDrive(t *testing.T, name string, collaborative bool) *drive.Drive {
	t.Helper()
	drv := &drive.Drive{
		Target:          drive.TargetDrive{Alias: uuid.New(), Type: uuid.New()},
		Name:            name,
		IsCollaborative: collaborative,
	}
	require.NoError(t, drive.NewRepository(e.db).Create(context.Background(), drv))
	return drv
}

func (e *testEnv) connect(t *testing.T, id identity.ID) {
	t.Helper()
	token := cryptox.RandBytes(32)
	salt := cryptox.RandBytes(16)
	require.NoError(t, connections.NewRegistry(e.db).Upsert(context.Background(), &connections.Record{
		Identity: id, AccessToken: token, TokenSalt: salt, Connected: true,
	}))
	e.secrets[id] = cryptox.DeriveSharedSecret(token, salt)
}

func (e *testEnv) newProcessor(deadLetter bool) *Processor {
	return NewProcessor(e.db, e.temp, e.payloads, e.log, deadLetter)
}

// peerContext builds a mutual-TLS caller context for the given drive.
func (e *testEnv) peerContext(drv *drive.Drive, caller identity.ID, storageKey []byte) *authz.Context {
	return authz.NewContext(caller, authz.AuthClassPeerCertificate, e.secrets[caller],
		map[drive.TargetDrive]authz.DriveGrant{
			drv.Target: {DriveID: drv.ID, CanWrite: true, StorageKey: storageKey},
		})
}

// appContext builds a bearer-token caller context, never direct-write
// eligible.
func (e *testEnv) appContext(drv *drive.Drive, caller identity.ID) *authz.Context {
	return authz.NewContext(caller, authz.AuthClassOther, e.secrets[caller],
		map[drive.TargetDrive]authz.DriveGrant{
			drv.Target: {DriveID: drv.ID, CanWrite: true},
		})
}

func (e *testEnv) sealedKeyHeader(t *testing.T, sender identity.ID) (drive.KeyHeader, peer.EncryptedKeyHeader) {
	t.Helper()
	kh := drive.KeyHeader{IV: cryptox.RandBytes(16), AESKey: cryptox.RandBytes(32)}
	sealed, err := peer.SealKeyHeader(kh, e.secrets[sender])
	require.NoError(t, err)
	return kh, sealed
}

func (e *testEnv) instructionSet(sealed peer.EncryptedKeyHeader, drv *drive.Drive,
	fsType drive.FileSystemType, tft peer.TransferFileType, contents peer.SendContents,
	manifest peer.UploadManifest) *peer.TransferInstructionSet {

	return &peer.TransferInstructionSet{
		TargetDrive:                    drv.Target,
		FileSystemType:                 fsType,
		TransferFileType:               tft,
		SharedSecretEncryptedKeyHeader: sealed,
		ContentsProvided:               contents,
		Manifest:                       manifest,
	}
}

// authzReadOnly builds a peer-certificate context whose grant cannot write.
func authzReadOnly(e *testEnv, caller identity.ID) *authz.Context {
	return authz.NewContext(caller, authz.AuthClassPeerCertificate, e.secrets[caller],
		map[drive.TargetDrive]authz.DriveGrant{
			e.drv.Target: {DriveID: e.drv.ID, CanWrite: false},
		})
}

func marshalMetadata(t *testing.T, md drive.FileMetadata) []byte {
	t.Helper()
	raw, err := json.Marshal(md)
	require.NoError(t, err)
	return raw
}

func (e *testEnv) queueSize(t *testing.T, driveID uuid.UUID) int {
	t.Helper()
	status, err := e.queue.PendingCount(context.Background(), driveID)
	require.NoError(t, err)
	return status.TotalItems
}

func (e *testEnv) fileCount(t *testing.T, driveID uuid.UUID) int {
	t.Helper()
	var n int
	require.NoError(t, e.db.QueryRow(
		`SELECT COUNT(*) FROM files WHERE drive_id = ?`, driveID[:]).Scan(&n))
	return n
}
