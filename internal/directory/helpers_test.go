package directory_test

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/EO-DataHub/eodhp-directory-services/db/memstore"
	"github.com/EO-DataHub/eodhp-directory-services/internal/directory"
	"github.com/EO-DataHub/eodhp-directory-services/internal/events"
	"github.com/EO-DataHub/eodhp-directory-services/internal/metadata"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu      sync.Mutex
	changes []events.Change
}

func (r *recordingNotifier) Notify(_ context.Context, c events.Change) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
	return nil
}

func (r *recordingNotifier) Close() {}

func (r *recordingNotifier) Changes() []events.Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Change(nil), r.changes...)
}

func testConfig() directory.Config {
	return directory.Config{
		DefaultDomain: "example.com",
		UIDStart:      500,
		UIDEnd:        600,
		GIDStart:      500,
		GIDEnd:        600,
		UserTypes:     []string{"employee", "consultant", "system"},
		DefUserType:   "employee",
		HomeRoot:      "/home",
		Shell:         "/bin/bash",
		SaltSize:      4,
	}
}

func newTestService(t *testing.T, cfg directory.Config) (*directory.Service, *recordingNotifier) {
	t.Helper()
	store, err := memstore.New()
	require.NoError(t, err)
	rec := &recordingNotifier{}
	return directory.NewService(cfg, store, rec), rec
}

// q builds a call from alternating keys and values.
func q(kv ...string) metadata.Call {
	query := metadata.Query{}
	for i := 0; i+1 < len(kv); i += 2 {
		query[kv[i]] = kv[i+1]
	}
	return metadata.Call{Query: query}
}

func withFile(c metadata.Call, content string) metadata.Call {
	c.Files = []io.Reader{strings.NewReader(content)}
	return c
}

func sshKey(algo, payloadAlgo string) string {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(len(payloadAlgo)))
	buf = append(buf, []byte(payloadAlgo)...)
	buf = append(buf, 0x00, 0x00, 0x00, 0x03, 0x01, 0x00, 0x01)
	return algo + " " + base64.StdEncoding.EncodeToString(buf)
}
