package contracts

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/Hamnivore/used-item-aggregator/internal/core/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyFromPath(t *testing.T) {
	assert.Equal(t, "SourceEvent/1.0.0", keyFromPath("events/source-event/v1.json"))
	assert.Equal(t, "StreamCommand/2.0.0", keyFromPath("commands/stream-command/v2.json"))
	assert.Equal(t, "", keyFromPath("v1.json"))
}

func TestParseCommand(t *testing.T) {
	cmd, err := ParseCommand([]byte(`{"type":"search","query":"bike"}`))
	require.NoError(t, err)
	assert.Equal(t, Command{Type: CommandSearch, Query: "bike"}, cmd)

	longest := strings.Repeat("é", MaxQueryLength)
	cmd, err = ParseCommand([]byte(`{"type":"search","query":"` + longest + `"}`))
	require.NoError(t, err)
	assert.Equal(t, longest, cmd.Query)

	cmd, err = ParseCommand([]byte(`{"type":"exit"}`))
	require.NoError(t, err)
	assert.Equal(t, CommandExit, cmd.Type)

	for _, bad := range []string{
		`{"type":"search"}`,
		`{"type":"search","query":""}`,
		`{"type":"search","query":"   "}`,
		`{"type":"search","query":"` + strings.Repeat("a", MaxQueryLength+1) + `"}`,
		`{"type":"dance"}`,
		`{"query":"bike"}`,
		`not json`,
	} {
		_, err := ParseCommand([]byte(bad))
		assert.Error(t, err, bad)
	}
}

func TestEventMessages_MatchSchema(t *testing.T) {
	id := uuid.New()
	price := 42.0
	link := "https://example.org/1"

	events := []domain.SourceEvent{
		domain.NewResultEvent("alpha", domain.ListingRecord{Name: "Bike", Price: &price, URL: &link}),
		domain.NewResultEvent("alpha", domain.ListingRecord{Name: "No price"}),
		domain.NewSourceErrorEvent("beta", "503"),
		domain.NewJobCompleteEvent(),
	}

	for _, ev := range events {
		body, err := json.Marshal(NewEventMessage(id, ev))
		require.NoError(t, err)
		assert.NoError(t, ValidateEvent(body), string(body))
	}
}

func TestEventMessage_Shapes(t *testing.T) {
	body, err := json.Marshal(NewEventMessage(uuid.Nil, domain.NewSourceErrorEvent("beta", "503")))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","source":"beta","data":{"message":"503"}}`, string(body))

	body, err = json.Marshal(NewEventMessage(uuid.Nil, domain.NewResultEvent("alpha", domain.ListingRecord{Name: "a"})))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"result","source":"alpha","data":{"name":"a","price":null,"image_urls":[],"url":null}}`, string(body))

	id := uuid.New()
	body, err = json.Marshal(NewEventMessage(id, domain.NewJobCompleteEvent()))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"search_complete","search_id":"`+id.String()+`"}`, string(body))
}

func TestValidateEvent_RejectsMalformed(t *testing.T) {
	assert.Error(t, ValidateEvent([]byte(`{"type":"result","source":"alpha"}`)))
	assert.Error(t, ValidateEvent([]byte(`{"type":"error","source":"beta","data":{}}`)))
	assert.Error(t, Validate("Unknown/1.0.0", []byte(`{}`)))
}
