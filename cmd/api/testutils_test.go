package main

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"io"
	"moviefavs.interimme.net/internal/data"
	"moviefavs.interimme.net/internal/jsonlog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

// testStore is an in-memory stand-in for PostgreSQL behind the data.Models interfaces.
// Values are copied in and out so handlers never share memory with the store, like rows
// read from a database.
type testStore struct {
	mu        sync.Mutex
	nextID    int64
	seq       int64
	movies    map[int64]data.Movie
	videos    map[int64]data.Video
	favorites map[[2]int64]favoriteRow
	users     map[int64]data.User
	tokens    map[string]data.Token
}

type favoriteRow struct {
	createdAt time.Time
	seq       int64
}

func newTestStore() *testStore {
	return &testStore{
		movies:    make(map[int64]data.Movie),
		videos:    make(map[int64]data.Video),
		favorites: make(map[[2]int64]favoriteRow),
		users:     make(map[int64]data.User),
		tokens:    make(map[string]data.Token),
	}
}

func (s *testStore) models() data.Models {
	return data.Models{
		Movies:    testMovies{s},
		Videos:    testVideos{s},
		Favorites: testFavorites{s},
		Tokens:    testTokens{s},
		Users:     testUsers{s},
	}
}

func (s *testStore) id() int64 {
	s.nextID++
	return s.nextID
}

func paginate[T any](items []T, filters data.Filters) ([]T, data.Metadata) {
	metadata := data.CalculateMetadata(len(items), filters.Page, filters.PageSize)
	start := min(filters.Offset(), len(items))
	end := min(start+filters.Limit(), len(items))
	return items[start:end], metadata
}

func (s *testStore) favoriteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.favorites)
}

// movieTaken reports whether another stored movie has movie's (name, description)
// pair. The caller holds s.mu.
func (s *testStore) movieTaken(movie *data.Movie) bool {
	for id, stored := range s.movies {
		if id != movie.ID && stored.Name == movie.Name && stored.Description == movie.Description {
			return true
		}
	}
	return false
}

type testMovies struct{ s *testStore }

func (m testMovies) Insert(movie *data.Movie) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if m.s.movieTaken(movie) {
		return data.ErrDuplicateMovie
	}
	movie.ID = m.s.id()
	movie.CreatedAt = time.Now()
	movie.Version = 1
	m.s.movies[movie.ID] = *movie
	return nil
}

func (m testMovies) Get(id int64) (*data.Movie, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	movie, ok := m.s.movies[id]
	if !ok {
		return nil, data.ErrRecordNotFound
	}
	return &movie, nil
}

func (m testMovies) GetByNameAndDescription(name, description string) (*data.Movie, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	for _, movie := range m.s.movies {
		if movie.Name == name && movie.Description == description {
			return &movie, nil
		}
	}
	return nil, data.ErrRecordNotFound
}

func (m testMovies) GetAll(search string, filters data.Filters) ([]*data.Movie, data.Metadata, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	movies := []*data.Movie{}
	for _, movie := range m.s.movies {
		text := strings.ToLower(movie.Name + " " + movie.Description)
		if search == "" || strings.Contains(text, strings.ToLower(search)) {
			movies = append(movies, &movie)
		}
	}

	sort.Slice(movies, func(i, j int) bool {
		a, b := movies[i], movies[j]
		switch filters.Sort {
		case "name":
			return a.Name < b.Name
		case "-name":
			return a.Name > b.Name
		case "-id":
			return a.ID > b.ID
		default:
			return a.ID < b.ID
		}
	})

	page, metadata := paginate(movies, filters)
	return page, metadata, nil
}

func (m testMovies) Update(movie *data.Movie) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	stored, ok := m.s.movies[movie.ID]
	if !ok || stored.Version != movie.Version {
		return data.ErrEditConflict
	}
	if m.s.movieTaken(movie) {
		return data.ErrDuplicateMovie
	}
	movie.Version++
	m.s.movies[movie.ID] = *movie
	return nil
}

func (m testMovies) Delete(id int64) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if _, ok := m.s.movies[id]; !ok {
		return data.ErrRecordNotFound
	}
	delete(m.s.movies, id)
	for videoID, video := range m.s.videos {
		if video.MovieID == id {
			m.s.deleteVideo(videoID)
		}
	}
	return nil
}

func (s *testStore) deleteVideo(id int64) {
	delete(s.videos, id)
	for key := range s.favorites {
		if key[1] == id {
			delete(s.favorites, key)
		}
	}
}

type testVideos struct{ s *testStore }

func (m testVideos) Insert(video *data.Video) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if _, ok := m.s.movies[video.MovieID]; !ok {
		return data.ErrRecordNotFound
	}
	video.ID = m.s.id()
	video.CreatedAt = time.Now()
	video.Version = 1
	m.s.videos[video.ID] = *video
	return nil
}

func (m testVideos) Get(id int64) (*data.Video, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	video, ok := m.s.videos[id]
	if !ok {
		return nil, data.ErrRecordNotFound
	}
	return &video, nil
}

func (m testVideos) GetAll(movieID int64, filters data.Filters) ([]*data.Video, data.Metadata, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	videos := []*data.Video{}
	for _, video := range m.s.videos {
		if movieID == 0 || video.MovieID == movieID {
			videos = append(videos, &video)
		}
	}
	sort.Slice(videos, func(i, j int) bool { return videos[i].ID < videos[j].ID })

	page, metadata := paginate(videos, filters)
	return page, metadata, nil
}

func (m testVideos) Delete(id int64) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if _, ok := m.s.videos[id]; !ok {
		return data.ErrRecordNotFound
	}
	m.s.deleteVideo(id)
	return nil
}

type testFavorites struct{ s *testStore }

func (m testFavorites) Insert(userID, videoID int64) (*data.Favorite, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	key := [2]int64{userID, videoID}
	if _, ok := m.s.favorites[key]; ok {
		return nil, data.ErrDuplicateFavorite
	}
	if _, ok := m.s.videos[videoID]; !ok {
		return nil, data.ErrRecordNotFound
	}

	m.s.seq++
	row := favoriteRow{createdAt: time.Now(), seq: m.s.seq}
	m.s.favorites[key] = row
	return &data.Favorite{UserID: userID, Video: data.Video{ID: videoID}, CreatedAt: row.createdAt}, nil
}

func (m testFavorites) Exists(userID, videoID int64) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	_, ok := m.s.favorites[[2]int64{userID, videoID}]
	return ok, nil
}

func (m testFavorites) Delete(userID, videoID int64) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	key := [2]int64{userID, videoID}
	if _, ok := m.s.favorites[key]; !ok {
		return data.ErrRecordNotFound
	}
	delete(m.s.favorites, key)
	return nil
}

func (m testFavorites) GetAllForUser(userID int64) ([]*data.Favorite, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	type entry struct {
		favorite *data.Favorite
		seq      int64
	}
	var entries []entry
	for key, row := range m.s.favorites {
		if key[0] != userID {
			continue
		}
		entries = append(entries, entry{
			favorite: &data.Favorite{UserID: userID, Video: m.s.videos[key[1]], CreatedAt: row.createdAt},
			seq:      row.seq,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq > entries[j].seq })

	favorites := []*data.Favorite{}
	for _, e := range entries {
		favorites = append(favorites, e.favorite)
	}
	return favorites, nil
}

type testTokens struct{ s *testStore }

func (m testTokens) New(userID int64, ttl time.Duration, scope string) (*data.Token, error) {
	token, err := data.GenerateToken(userID, ttl, scope)
	if err != nil {
		return nil, err
	}

	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.tokens[string(token.Hash)] = *token
	return token, nil
}

func (m testTokens) DeleteAllForUser(scope string, userID int64) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	for hash, token := range m.s.tokens {
		if token.Scope == scope && token.UserID == userID {
			delete(m.s.tokens, hash)
		}
	}
	return nil
}

type testUsers struct{ s *testStore }

func (m testUsers) emailTaken(email string, exceptID int64) bool {
	for _, user := range m.s.users {
		if user.ID != exceptID && strings.EqualFold(user.Email, email) {
			return true
		}
	}
	return false
}

func (m testUsers) Insert(user *data.User) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if m.emailTaken(user.Email, 0) {
		return data.ErrDuplicateEmail
	}
	user.ID = m.s.id()
	user.CreatedAt = time.Now()
	user.Version = 1
	m.s.users[user.ID] = *user
	return nil
}

func (m testUsers) Get(id int64) (*data.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	user, ok := m.s.users[id]
	if !ok {
		return nil, data.ErrRecordNotFound
	}
	return &user, nil
}

func (m testUsers) GetByEmail(email string) (*data.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	for _, user := range m.s.users {
		if strings.EqualFold(user.Email, email) {
			return &user, nil
		}
	}
	return nil, data.ErrRecordNotFound
}

func (m testUsers) GetForToken(tokenScope, tokenPlaintext string) (*data.User, error) {
	hash := sha256.Sum256([]byte(tokenPlaintext))

	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	token, ok := m.s.tokens[string(hash[:])]
	if !ok || token.Scope != tokenScope || !token.Expiry.After(time.Now()) {
		return nil, data.ErrRecordNotFound
	}
	user, ok := m.s.users[token.UserID]
	if !ok {
		return nil, data.ErrRecordNotFound
	}
	return &user, nil
}

func (m testUsers) GetAll(filters data.Filters) ([]*data.User, data.Metadata, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	users := []*data.User{}
	for _, user := range m.s.users {
		users = append(users, &user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })

	page, metadata := paginate(users, filters)
	return page, metadata, nil
}

func (m testUsers) Update(user *data.User) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	stored, ok := m.s.users[user.ID]
	if !ok || stored.Version != user.Version {
		return data.ErrEditConflict
	}
	if m.emailTaken(user.Email, user.ID) {
		return data.ErrDuplicateEmail
	}
	user.Version++
	m.s.users[user.ID] = *user
	return nil
}

func (m testUsers) Delete(id int64) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if _, ok := m.s.users[id]; !ok {
		return data.ErrRecordNotFound
	}
	delete(m.s.users, id)
	for key := range m.s.favorites {
		if key[0] == id {
			delete(m.s.favorites, key)
		}
	}
	return nil
}

type sentEmail struct {
	recipient string
	template  string
	data      any
}

// stubMailer records messages instead of talking to an SMTP server.
type stubMailer struct {
	mu   sync.Mutex
	sent []sentEmail
}

func (m *stubMailer) Send(recipient, templateFile string, data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentEmail{recipient: recipient, template: templateFile, data: data})
	return nil
}

func (m *stubMailer) messages() []sentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentEmail(nil), m.sent...)
}

const testJWTSecret = "test-secret-with-enough-entropy"

func newTestApplication(t *testing.T) (*application, *testStore, *stubMailer) {
	t.Helper()

	var cfg config
	cfg.port = 3000
	cfg.env = "testing"
	cfg.cors.trustedOrigins = []string{"*"}
	cfg.jwt.secret = testJWTSecret
	cfg.jwt.issuer = "moviefavs.interimme.net"
	cfg.jwt.ttl = 15 * time.Minute
	cfg.refreshTTL = time.Hour

	store := newTestStore()
	mailer := &stubMailer{}

	app := &application{
		config:  cfg,
		logger:  jsonlog.New(io.Discard, jsonlog.LevelOff),
		models:  store.models(),
		mailer:  mailer,
		metrics: newMetrics(),
	}
	return app, store, mailer
}

// addUser stores a user without a password; it can use access tokens but not log in.
func (s *testStore) addUser(t *testing.T, email string, flag data.PermissionFlag) *data.User {
	t.Helper()

	user := &data.User{Email: email, PermissionFlag: flag}
	if err := (testUsers{s}).Insert(user); err != nil {
		t.Fatal(err)
	}
	return user
}

func (s *testStore) addMovie(t *testing.T, name, description string) *data.Movie {
	t.Helper()

	movie := &data.Movie{Name: name, Description: description}
	if err := (testMovies{s}).Insert(movie); err != nil {
		t.Fatal(err)
	}
	return movie
}

func (s *testStore) addVideo(t *testing.T, movieID int64, title string) *data.Video {
	t.Helper()

	video := &data.Video{MovieID: movieID, Title: title}
	if err := (testVideos{s}).Insert(video); err != nil {
		t.Fatal(err)
	}
	return video
}

func (app *application) accessToken(t *testing.T, user *data.User) string {
	t.Helper()

	token, _, err := app.issueAccessToken(user)
	if err != nil {
		t.Fatal(err)
	}
	return string(token)
}

type testServer struct {
	*httptest.Server
}

func newTestServer(t *testing.T, h http.Handler) *testServer {
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return &testServer{ts}
}

type testResponse struct {
	status int
	header http.Header
	body   []byte
}

// json decodes the response body as a JSON object.
func (r testResponse) json(t *testing.T) map[string]any {
	t.Helper()

	var m map[string]any
	if err := json.Unmarshal(r.body, &m); err != nil {
		t.Fatalf("decoding %q: %v", r.body, err)
	}
	return m
}

// fieldErrors returns the "error" member of a validation failure.
func (r testResponse) fieldErrors(t *testing.T) map[string]any {
	t.Helper()

	errs, ok := r.json(t)["error"].(map[string]any)
	if !ok {
		t.Fatalf("want field errors; got %s", r.body)
	}
	return errs
}

// do sends a request. body is sent verbatim when it is a string and JSON-encoded
// otherwise; a nil body sends nothing.
func (ts *testServer) do(t *testing.T, method, path, token string, body any) testResponse {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		js, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(js)
	}

	req, err := http.NewRequest(method, ts.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rs, err := ts.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer rs.Body.Close()

	respBody, err := io.ReadAll(rs.Body)
	if err != nil {
		t.Fatal(err)
	}
	return testResponse{status: rs.StatusCode, header: rs.Header, body: respBody}
}
