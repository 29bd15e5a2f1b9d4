package queue

import (
	"errors"
	"iter"
	"math/rand"
	"time"

	"StudioFM/model"
)

// historyCap 随机播放历史的存储上限
const historyCap = 10

var (
	ErrEmpty           = errors.New("queue is empty")
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrNotDynamic      = errors.New("queue source is not dynamic")
	ErrNotFound        = errors.New("track not in queue")
)

// Queue 播放队列：有序曲目、当前位置、随机播放状态与来源标签。
// Queue 本身不加锁，由持有者（播放器控制器）串行化访问。
type Queue struct {
	tracks  []model.Track
	current int
	source  model.Source
	shuffle bool
	history []int
	rng     *rand.Rand
}

// Option 队列构造选项
type Option func(*Queue)

// WithRand 注入随机源，测试中使用固定种子
func WithRand(r *rand.Rand) Option {
	return func(q *Queue) { q.rng = r }
}

// New 创建空队列
func New(opts ...Option) *Queue {
	q := &Queue{current: -1}
	for _, opt := range opts {
		opt(q)
	}
	if q.rng == nil {
		q.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return q
}

// Load 整体替换队列内容。startIndex 越界视为调用方错误，队列保持不变。
func (q *Queue) Load(tracks []model.Track, startIndex int, source model.Source) error {
	if len(tracks) == 0 {
		return ErrEmpty
	}
	if startIndex < 0 || startIndex >= len(tracks) {
		return ErrIndexOutOfRange
	}

	q.tracks = append([]model.Track(nil), tracks...)
	q.current = startIndex
	q.source = source
	q.history = q.history[:0]
	if q.shuffle {
		q.pushHistory(startIndex)
	}
	return nil
}

// Clear 清空队列，关闭播放器时调用
func (q *Queue) Clear() {
	q.tracks = nil
	q.current = -1
	q.source = ""
	q.history = nil
}

func (q *Queue) Len() int { return len(q.tracks) }

func (q *Queue) Source() model.Source { return q.source }

func (q *Queue) CurrentIndex() int { return q.current }

func (q *Queue) Shuffle() bool { return q.shuffle }

// Tracks 返回队列副本
func (q *Queue) Tracks() []model.Track {
	out := make([]model.Track, len(q.tracks))
	copy(out, q.tracks)
	return out
}

// History 返回随机播放历史副本，最旧的在前
func (q *Queue) History() []int {
	out := make([]int, len(q.history))
	copy(out, q.history)
	return out
}

// Current 当前曲目
func (q *Queue) Current() (model.Track, error) {
	if q.current < 0 || q.current >= len(q.tracks) {
		return model.Track{}, ErrEmpty
	}
	return q.tracks[q.current], nil
}

// SetShuffle 开关随机播放。开启时当前位置记入历史，关闭时清空历史。
func (q *Queue) SetShuffle(enabled bool) {
	if q.shuffle == enabled {
		return
	}
	q.shuffle = enabled
	q.history = q.history[:0]
	if enabled && q.current >= 0 {
		q.pushHistory(q.current)
	}
}

// PlayAt 跳转到指定位置
func (q *Queue) PlayAt(index int) (model.Track, error) {
	if len(q.tracks) == 0 {
		return model.Track{}, ErrEmpty
	}
	if index < 0 || index >= len(q.tracks) {
		return model.Track{}, ErrIndexOutOfRange
	}
	q.current = index
	if q.shuffle {
		q.pushHistory(index)
	}
	return q.tracks[index], nil
}

// Next 下一首：顺序模式循环递增，随机模式按历史窗口避让
func (q *Queue) Next() (model.Track, error) {
	return q.advance(1)
}

// Previous 上一首：顺序模式循环递减，随机模式与 Next 相同
func (q *Queue) Previous() (model.Track, error) {
	return q.advance(-1)
}

func (q *Queue) advance(step int) (model.Track, error) {
	n := len(q.tracks)
	if n == 0 {
		return model.Track{}, ErrEmpty
	}

	if q.shuffle {
		idx := q.pickShuffled()
		q.current = idx
		q.pushHistory(idx)
	} else {
		q.current = ((q.current+step)%n + n) % n
	}
	return q.tracks[q.current], nil
}

// pickShuffled 候选池为最近 min(10, n-1) 次历史之外的下标；池空时在全体中均匀选取
func (q *Queue) pickShuffled() int {
	n := len(q.tracks)
	window := min(historyCap, n-1)

	recent := make(map[int]struct{}, window)
	start := max(0, len(q.history)-window)
	for _, idx := range q.history[start:] {
		recent[idx] = struct{}{}
	}

	pool := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if _, seen := recent[i]; !seen {
			pool = append(pool, i)
		}
	}
	if len(pool) == 0 {
		return q.rng.Intn(n)
	}
	return pool[q.rng.Intn(len(pool))]
}

func (q *Queue) pushHistory(idx int) {
	q.history = append(q.history, idx)
	if len(q.history) > historyCap {
		q.history = q.history[len(q.history)-historyCap:]
	}
}

// Upcoming 当前位置之后的 count 首曲目，循环取值，绕回当前位置前停止。
// 每次 range 都重新计算，不保留游标。
func (q *Queue) Upcoming(count int) iter.Seq[model.Track] {
	return func(yield func(model.Track) bool) {
		n := len(q.tracks)
		if n == 0 || q.current < 0 {
			return
		}
		for i := 1; i <= count; i++ {
			idx := (q.current + i) % n
			if idx == q.current {
				return
			}
			if !yield(q.tracks[idx]) {
				return
			}
		}
	}
}

// Append 追加曲目，仅限 dynamic 来源
func (q *Queue) Append(track model.Track) error {
	if q.source != model.SourceDynamic {
		return ErrNotDynamic
	}
	q.tracks = append(q.tracks, track)
	if q.current < 0 {
		q.current = 0
	}
	return nil
}

// Remove 按 id 移除曲目，仅限 dynamic 来源，返回剩余数量。
// 移除位置在当前之前时当前下标前移；移除的是末尾的当前曲目时收回到新末尾。
func (q *Queue) Remove(id string) (int, error) {
	if q.source != model.SourceDynamic {
		return len(q.tracks), ErrNotDynamic
	}

	removed := -1
	for i, t := range q.tracks {
		if t.ID == id {
			removed = i
			break
		}
	}
	if removed < 0 {
		return len(q.tracks), ErrNotFound
	}

	q.tracks = append(q.tracks[:removed], q.tracks[removed+1:]...)
	if len(q.tracks) == 0 {
		q.current = -1
		q.history = q.history[:0]
		return 0, nil
	}

	if removed < q.current {
		q.current--
	} else if q.current >= len(q.tracks) {
		q.current = len(q.tracks) - 1
	}
	q.remapHistory(removed)
	return len(q.tracks), nil
}

// remapHistory 删除被移除的下标，并把其后的下标前移一位
func (q *Queue) remapHistory(removed int) {
	kept := q.history[:0]
	for _, idx := range q.history {
		switch {
		case idx == removed:
			continue
		case idx > removed:
			kept = append(kept, idx-1)
		default:
			kept = append(kept, idx)
		}
	}
	q.history = kept
}
