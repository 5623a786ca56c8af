package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/Hamnivore/used-item-aggregator/internal/contracts"
	"github.com/Hamnivore/used-item-aggregator/internal/core/domain"
	"github.com/Hamnivore/used-item-aggregator/internal/core/port"
	"github.com/Hamnivore/used-item-aggregator/internal/core/usecase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Info(string, port.Fields)         {}
func (nopLogger) Warn(string, port.Fields)         {}
func (nopLogger) Error(string, error, port.Fields) {}
func (nopLogger) Debug(string, port.Fields)        {}
func (l nopLogger) WithFields(port.Fields) port.LoggerPort {
	return l
}

type stubAdapter struct {
	source domain.SourceID
	items  []domain.ListingRecord
	err    error
	block  bool
}

func (s stubAdapter) Source() domain.SourceID { return s.source }

func (s stubAdapter) Search(ctx context.Context, query string) ([]domain.ListingRecord, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.items, s.err
}

func bikeOrchestrator(t *testing.T) *usecase.OrchestrateSearchUseCase {
	t.Helper()
	p1, p2 := 10.0, 20.0
	orch, err := usecase.NewOrchestrateSearchUseCase([]port.SourceAdapterPort{
		stubAdapter{source: "alpha", items: []domain.ListingRecord{{Name: "one", Price: &p1}, {Name: "two", Price: &p2}}},
		stubAdapter{source: "beta", err: &domain.FetchError{Source: "beta", Message: "503"}},
		stubAdapter{source: "gamma"},
	}, usecase.OrchestratorConfig{SourceTimeout: time.Second})
	require.NoError(t, err)
	return orch
}

type peer struct {
	t       *testing.T
	conn    net.Conn
	scanner *bufio.Scanner
}

func newPeer(t *testing.T, conn net.Conn) *peer {
	return &peer{t: t, conn: conn, scanner: bufio.NewScanner(conn)}
}

func (p *peer) send(line string) {
	p.t.Helper()
	_, err := p.conn.Write([]byte(line + "\n"))
	require.NoError(p.t, err)
}

func (p *peer) next() map[string]interface{} {
	p.t.Helper()
	require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	require.True(p.t, p.scanner.Scan(), "expected a message: %v", p.scanner.Err())
	var msg map[string]interface{}
	require.NoError(p.t, json.Unmarshal(p.scanner.Bytes(), &msg))
	if msg["type"] != contracts.MessageCommandError {
		require.NoError(p.t, contracts.ValidateEvent(p.scanner.Bytes()))
	}
	return msg
}

// untilComplete collects messages up to and including search_complete.
func (p *peer) untilComplete() []map[string]interface{} {
	p.t.Helper()
	var msgs []map[string]interface{}
	for {
		msg := p.next()
		msgs = append(msgs, msg)
		if msg["type"] == "search_complete" {
			return msgs
		}
	}
}

func startSession(t *testing.T, orch *usecase.OrchestrateSearchUseCase) (*peer, <-chan error) {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	session := NewSession(serverConn, orch, SessionConfig{QueueCapacity: 4, DrainTimeout: 2 * time.Second}, nopLogger{})

	done := make(chan error, 1)
	go func() { done <- session.Serve(context.Background()) }()
	t.Cleanup(func() { _ = clientConn.Close() })
	return newPeer(t, clientConn), done
}

func TestSession_BikeScenario(t *testing.T) {
	p, done := startSession(t, bikeOrchestrator(t))

	p.send(`{"type":"search","query":"bike"}`)
	msgs := p.untilComplete()
	require.Len(t, msgs, 4)

	searchID := msgs[3]["search_id"]
	require.NotEmpty(t, searchID)

	var alphaNames []string
	var errs []string
	for _, m := range msgs[:3] {
		assert.Equal(t, searchID, m["search_id"])
		data := m["data"].(map[string]interface{})
		switch m["type"] {
		case "result":
			assert.Equal(t, "alpha", m["source"])
			alphaNames = append(alphaNames, data["name"].(string))
		case "error":
			assert.Equal(t, "beta", m["source"])
			errs = append(errs, data["message"].(string))
		}
	}
	assert.Equal(t, []string{"one", "two"}, alphaNames)
	assert.Equal(t, []string{"503"}, errs)

	p.send(`{"type":"exit"}`)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("session did not close after exit")
	}
}

func TestSession_InvalidCommandKeepsSessionAlive(t *testing.T) {
	p, done := startSession(t, bikeOrchestrator(t))

	p.send(`{"type":"search"}`)
	reply := p.next()
	assert.Equal(t, contracts.MessageCommandError, reply["type"])
	assert.NotEmpty(t, reply["message"])

	p.send(`not json at all`)
	assert.Equal(t, contracts.MessageCommandError, p.next()["type"])

	p.send(`{"type":"search","query":"   "}`)
	assert.Equal(t, contracts.MessageCommandError, p.next()["type"])

	p.send(`{"type":"search","query":"chair"}`)
	assert.Len(t, p.untilComplete(), 4)

	p.send(`{"type":"exit"}`)
	require.NoError(t, <-done)
}

func TestSession_JobsOfOnePeerRunInOrder(t *testing.T) {
	p, done := startSession(t, bikeOrchestrator(t))

	p.send(`{"type":"search","query":"first"}`)
	p.send(`{"type":"search","query":"second"}`)

	first := p.untilComplete()
	second := p.untilComplete()
	assert.NotEqual(t, first[len(first)-1]["search_id"], second[len(second)-1]["search_id"])
	for _, m := range first {
		assert.Equal(t, first[len(first)-1]["search_id"], m["search_id"])
	}

	p.send(`{"type":"exit"}`)
	require.NoError(t, <-done)
}

func TestSession_PeerDisconnectCancelsRunningSearch(t *testing.T) {
	orch, err := usecase.NewOrchestrateSearchUseCase([]port.SourceAdapterPort{
		stubAdapter{source: "slow", block: true},
	}, usecase.OrchestratorConfig{SourceTimeout: time.Minute})
	require.NoError(t, err)

	p, done := startSession(t, orch)
	p.send(`{"type":"search","query":"bike"}`)
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, p.conn.Close())

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("session kept running after the peer left")
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errors.New("broken pipe") }

func TestConnSink_WriteFailureIsSticky(t *testing.T) {
	sink := NewConnSink(failingWriter{}, 1, nopLogger{})
	ctx := context.Background()
	job := domain.NewJob("bike")

	require.NoError(t, sink.Emit(ctx, job, domain.NewJobCompleteEvent()))
	require.Eventually(t, func() bool { return sink.Err() != nil }, time.Second, 5*time.Millisecond)

	err := sink.Emit(ctx, job, domain.NewJobCompleteEvent())
	assert.ErrorIs(t, err, domain.ErrTransportDisconnected)
	assert.ErrorIs(t, sink.JobQueued(ctx, job), domain.ErrTransportDisconnected)
	assert.Error(t, sink.Close())
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func TestConnSink_PreservesOrder(t *testing.T) {
	out := &lockedBuffer{}
	sink := NewConnSink(out, 4, nopLogger{})
	job := domain.NewJob("bike")

	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		require.NoError(t, sink.Emit(context.Background(), job, domain.NewResultEvent("alpha", domain.ListingRecord{Name: name})))
	}
	require.NoError(t, sink.Close())

	var names []string
	scanner := bufio.NewScanner(&out.buf)
	for scanner.Scan() {
		var msg contracts.EventMessage
		var data struct {
			Data domain.ListingRecord `json:"data"`
		}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &msg))
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &data))
		assert.Equal(t, job.ID.String(), msg.SearchID)
		names = append(names, data.Data.Name)
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f"}, names)

	assert.ErrorIs(t, sink.Emit(context.Background(), job, domain.NewJobCompleteEvent()), domain.ErrTransportDisconnected)
}

func TestServer_AcceptsPeersAndStops(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(ln.Addr().String(), bikeOrchestrator(t), SessionConfig{DrainTimeout: time.Second}, nopLogger{})
	served := make(chan error, 1)
	go func() { served <- srv.Serve(context.Background(), ln) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	p := newPeer(t, conn)
	p.send(`{"type":"search","query":"bike"}`)
	assert.Len(t, p.untilComplete(), 4)

	require.NoError(t, srv.Close())
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
