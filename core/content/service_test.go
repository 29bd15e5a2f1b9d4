package content

import (
	"context"
	"errors"
	"testing"

	"StudioFM/model"
	"StudioFM/repository"
)

type stubRepo struct {
	lists map[model.Source][]model.Track
	err   error
}

func (s stubRepo) ListBySource(_ context.Context, src model.Source) ([]model.Track, error) {
	return s.lists[src], s.err
}

func (s stubRepo) GetByID(_ context.Context, id string) (*model.Track, error) {
	if s.err != nil {
		return nil, s.err
	}
	for _, list := range s.lists {
		for _, t := range list {
			if t.ID == id {
				return &t, nil
			}
		}
	}
	return nil, repository.ErrTrackNotFound
}

func (s stubRepo) HasAudioURL(_ context.Context, audioURL string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	for _, list := range s.lists {
		for _, t := range list {
			if t.AudioURL == audioURL {
				return true, nil
			}
		}
	}
	return false, nil
}

func TestPlaylistPrefersStore(t *testing.T) {
	repo := stubRepo{lists: map[model.Source][]model.Track{
		model.SourceRadio: {{ID: "1", AudioURL: "https://cdn/1.mp3"}},
	}}
	s := NewService(repo)
	got := s.Playlist(context.Background(), model.SourceRadio)
	if len(got) != 1 || got[0].ID != "1" {
		t.Fatalf("unexpected playlist %v", got)
	}
}

func TestPlaylistFallbacks(t *testing.T) {
	cases := []struct {
		name    string
		repo    repository.TrackRepository
		source  model.Source
		wantLen int
	}{
		{"radio on error", stubRepo{err: errors.New("timeout")}, model.SourceRadio, 3},
		{"library on empty", stubRepo{}, model.SourceLibrary, 2},
		{"production on error", stubRepo{err: errors.New("timeout")}, model.SourceProduction, 0},
		{"no store", nil, model.SourceRadio, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NewService(tc.repo).Playlist(context.Background(), tc.source)
			if len(got) != tc.wantLen {
				t.Fatalf("expected %d tracks, got %d", tc.wantLen, len(got))
			}
			for _, tr := range got {
				if !tr.Playable() {
					t.Fatalf("fallback track %q not playable", tr.ID)
				}
			}
		})
	}
}

func TestFallbackReturnsCopy(t *testing.T) {
	s := NewService(nil)
	a := s.Fallback(model.SourceRadio)
	a[0].Title = "mutated"
	if s.Fallback(model.SourceRadio)[0].Title == "mutated" {
		t.Fatal("fallback list must not be shared")
	}
}

func TestTrackLookup(t *testing.T) {
	s := NewService(stubRepo{err: errors.New("db down")})
	if _, ok := s.Track(context.Background(), "42"); ok {
		t.Fatal("expected not found when store fails")
	}
	if tr, ok := s.Track(context.Background(), "fallback-library-2"); !ok || tr.Title != "Tension Bed" {
		t.Fatalf("expected fallback track, got %+v ok=%v", tr, ok)
	}
}

func TestKnownAudioURL(t *testing.T) {
	ctx := context.Background()
	stored := model.Track{ID: "7", Title: "Stored", AudioURL: "https://cdn.example.com/7.mp3"}
	svc := NewService(stubRepo{lists: map[model.Source][]model.Track{model.SourceLibrary: {stored}}})
	builtin := svc.Fallback(model.SourceRadio)[0]

	if !svc.Known(ctx, stored.AudioURL) || !svc.Known(ctx, builtin.AudioURL) {
		t.Fatal("catalogue urls must be known")
	}
	if svc.Known(ctx, "http://169.254.169.254/latest/meta-data") {
		t.Fatal("foreign url must be unknown")
	}

	broken := NewService(stubRepo{err: errors.New("db down")})
	if broken.Known(ctx, stored.AudioURL) || !broken.Known(ctx, builtin.AudioURL) {
		t.Fatal("store errors should fall back to built-in tracks only")
	}
}
