package muxer

import (
	"sort"

	"github.com/ossrs/srs-sub009/internal/protocols/rtmp/message"
)

const (
	maxCollisionBumps = 10
	maxQueuedVideos   = 100
	maxQueuedAudios   = 300
)

// queue is a small reorder buffer keyed by timestamp. Messages leave
// in timestamp order once enough audio and video has accumulated.
type queue struct {
	items    map[int64]message.Message
	nbVideos int
	nbAudios int
}

// push inserts a message at the given timestamp in milliseconds; on a
// collision the timestamp advances by 1 ms a bounded number of times.
// It returns the timestamp actually used.
func (q *queue) push(ts int64, msg message.Message, isVideo bool) (int64, bool) {
	bumps := 0
	for {
		if _, ok := q.items[ts]; !ok {
			break
		}

		if bumps >= maxCollisionBumps {
			return 0, false
		}
		ts++
		bumps++
	}

	q.items[ts] = msg
	if isVideo {
		q.nbVideos++
	} else {
		q.nbAudios++
	}

	return ts, true
}

func (q *queue) ready() bool {
	if q.nbVideos >= 2 && q.nbAudios >= 2 {
		return true
	}
	return q.nbVideos > maxQueuedVideos || q.nbAudios > maxQueuedAudios
}

// pop removes and returns the oldest message.
func (q *queue) pop() message.Message {
	if len(q.items) == 0 {
		return nil
	}

	keys := make([]int64, 0, len(q.items))
	for ts := range q.items {
		keys = append(keys, ts)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	msg := q.items[keys[0]]
	delete(q.items, keys[0])

	if _, ok := msg.(*message.Video); ok {
		q.nbVideos--
	} else {
		q.nbAudios--
	}

	return msg
}
