package memory

import (
	"context"
	"sort"
	"sync"

	"live-quiz-service/internal/domain"
)

// QuizStore is the in-memory durable-record stand-in used without Postgres
// and by unit tests.
type QuizStore struct {
	mu      sync.RWMutex
	quizzes map[string]domain.Quiz
}

func NewQuizStore() *QuizStore {
	return &QuizStore{quizzes: make(map[string]domain.Quiz)}
}

func (s *QuizStore) Create(_ context.Context, quiz *domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quizzes[quiz.ID] = *quiz
	return nil
}

func (s *QuizStore) FindByID(_ context.Context, id string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[id]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}

func (s *QuizStore) FindAll(_ context.Context) ([]domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLocked(nil), nil
}

func (s *QuizStore) FindByStatus(_ context.Context, statuses ...domain.QuizStatus) ([]domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLocked(statuses), nil
}

func (s *QuizStore) FindRecent(_ context.Context, limit int, statuses ...domain.QuizStatus) ([]domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quizzes := s.sortedLocked(statuses)
	if limit > 0 && len(quizzes) > limit {
		quizzes = quizzes[:limit]
	}
	return quizzes, nil
}

func (s *QuizStore) UpdateStatus(_ context.Context, id string, status domain.QuizStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz, ok := s.quizzes[id]
	if !ok {
		return domain.ErrQuizNotFound
	}
	quiz.Status = status
	s.quizzes[id] = quiz
	return nil
}

// sortedLocked returns matching quizzes newest first.
func (s *QuizStore) sortedLocked(statuses []domain.QuizStatus) []domain.Quiz {
	out := make([]domain.Quiz, 0, len(s.quizzes))
	for _, quiz := range s.quizzes {
		if len(statuses) > 0 {
			match := false
			for _, status := range statuses {
				if quiz.Status == status {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, quiz)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// ResultStore keeps graded results in memory.
type ResultStore struct {
	mu      sync.RWMutex
	results []domain.QuizResult
}

func NewResultStore() *ResultStore {
	return &ResultStore{}
}

func (s *ResultStore) Save(_ context.Context, result *domain.QuizResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, *result)
	return nil
}

func (s *ResultStore) FindByID(_ context.Context, id string) (domain.QuizResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.results {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.QuizResult{}, domain.ErrResultNotFound
}

func (s *ResultStore) FindAll(_ context.Context) ([]domain.QuizResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterLocked(func(domain.QuizResult) bool { return true }), nil
}

func (s *ResultStore) FindByStudent(_ context.Context, studentID string) ([]domain.QuizResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterLocked(func(r domain.QuizResult) bool { return r.StudentID == studentID }), nil
}

func (s *ResultStore) FindByQuizIDs(_ context.Context, quizIDs []string) ([]domain.QuizResult, error) {
	ids := make(map[string]struct{}, len(quizIDs))
	for _, id := range quizIDs {
		ids[id] = struct{}{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterLocked(func(r domain.QuizResult) bool {
		_, ok := ids[r.QuizID]
		return ok
	}), nil
}

// filterLocked returns matches newest first.
func (s *ResultStore) filterLocked(keep func(domain.QuizResult) bool) []domain.QuizResult {
	out := make([]domain.QuizResult, 0)
	for _, r := range s.results {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// MalpracticeStore is the in-memory append-only audit trail.
type MalpracticeStore struct {
	mu      sync.Mutex
	entries []domain.MalpracticeLog
}

func NewMalpracticeStore() *MalpracticeStore {
	return &MalpracticeStore{}
}

func (s *MalpracticeStore) Append(_ context.Context, entry domain.MalpracticeLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// Entries is test-only visibility into the trail.
func (s *MalpracticeStore) Entries() []domain.MalpracticeLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.MalpracticeLog, len(s.entries))
	copy(out, s.entries)
	return out
}

// UserStore is a static account lookup seeded at construction.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

func NewUserStore(users ...domain.User) *UserStore {
	store := &UserStore{users: make(map[string]domain.User, len(users))}
	for _, u := range users {
		store.users[u.UserID] = u
	}
	return store
}

func (s *UserStore) FindByID(_ context.Context, userID string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

func (s *UserStore) FindStudents(_ context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		if u.Role == domain.RoleStudent {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}
