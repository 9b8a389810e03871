package mongo

import (
	"context"
	"os"
	"testing"

	"udpadijaya/posagent/internal/store/storetest"
)

func TestJournalAgainstMongo(t *testing.T) {
	uri := os.Getenv("POSAGENT_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("set POSAGENT_TEST_MONGO_URI to run mongo integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, uri, "posagent_test")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close(context.Background())
	})
	if err := s.EnsureIndexes(ctx); err != nil {
		t.Fatalf("ensure indexes: %v", err)
	}

	storetest.RunJournal(t, s)
}
