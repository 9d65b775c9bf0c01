package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrentSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/sessions/current", r.URL.Path)
		fmt.Fprint(w, `{"id":"s1","stream_key":"k1"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	session, err := c.CurrentSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "s1", session.ID)
	assert.Equal(t, "k1", session.StreamKey)
}

func TestCurrentSessionAbsentMeansNoSession(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"not found": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		},
		"empty object": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{}`)
		},
		"null": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `null`)
		},
		"no id": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"stream_key":"k1"}`)
		},
	}

	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(handler)
			defer srv.Close()

			c := NewClient(srv.URL)
			session, err := c.CurrentSession(context.Background())
			require.NoError(t, err)
			assert.Nil(t, session)
		})
	}
}

func TestCurrentSessionServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.CurrentSession(context.Background())
	require.Error(t, err)
}

func TestSessionQuizzes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/sessions/s1/quizzes", r.URL.Path)
		fmt.Fprint(w, `[{"id":"q1","question":"a?","options":["x","y"]},{"id":"q2","question":"b?","options":["x","y"]}]`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	quizzes, err := c.SessionQuizzes(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, quizzes, 2)
	assert.Equal(t, "q2", quizzes[1].ID)
	assert.Equal(t, []string{"x", "y"}, quizzes[1].Options)
}

func TestSessionQuizzesNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	quizzes, err := c.SessionQuizzes(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(t, quizzes)
}
