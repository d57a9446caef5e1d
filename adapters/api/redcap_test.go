package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"medstat/internal/errors"
	"medstat/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestREDCapExport(t *testing.T) {
	var form map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"record_id":"1","age":"54","arm":"Drug"},
			{"record_id":"2","age":"","arm":"Placebo","extra":7}
		]`))
	}))
	defer srv.Close()

	client := NewREDCapClient(5*time.Second, nil)
	table, err := client.Export(context.Background(), ports.ExportRequest{URL: srv.URL, Token: "abc"})
	require.NoError(t, err)

	assert.Equal(t, "abc", form["token"])
	assert.Equal(t, "record", form["content"])
	assert.Equal(t, "flat", form["type"])
	assert.Equal(t, "label", form["rawOrLabel"])
	assert.Equal(t, "json", form["returnFormat"])

	assert.Equal(t, []string{"record_id", "age", "arm", "extra"}, table.Headers)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "", table.Rows[0]["extra"])
	assert.Equal(t, "7", table.Rows[1]["extra"])
	assert.Equal(t, "", table.Rows[1]["age"])
}

func TestREDCapErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		validation bool
	}{
		{"api error", http.StatusForbidden, `{"error":"You do not have permissions"}`, false},
		{"error object with 200", http.StatusOK, `{"error":"bad token"}`, false},
		{"not json", http.StatusOK, `<html>`, false},
		{"empty export", http.StatusOK, `[]`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewREDCapClient(time.Second, nil).Export(context.Background(),
				ports.ExportRequest{URL: srv.URL, Token: "t", RawOrLabel: "raw"})
			require.Error(t, err)
			if tt.validation {
				assert.True(t, errors.IsValidation(err))
			} else {
				assert.Equal(t, errors.CodeExternalService, errors.GetCode(err))
			}
		})
	}
}

func TestREDCapRequestValidation(t *testing.T) {
	client := NewREDCapClient(time.Second, nil)
	_, err := client.Export(context.Background(), ports.ExportRequest{URL: "http://x"})
	assert.True(t, errors.IsValidation(err))

	_, err = client.Export(context.Background(), ports.ExportRequest{URL: "http://x", Token: "t", RawOrLabel: "both"})
	assert.True(t, errors.IsValidation(err))
}
