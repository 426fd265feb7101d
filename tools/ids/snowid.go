package ids

import (
	"strconv"
	"sync"
	"time"
)

const (
	nodeBits = 10
	seqBits  = 12
	maxNode  = 1<<nodeBits - 1
	seqMask  = 1<<seqBits - 1
)

var epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// Node hands out snowflake ids (41 bit ms timestamp, 10 bit node, 12 bit sequence).
// Ids from one Node are unique and increasing within the process.
type Node struct {
	mu     sync.Mutex
	node   int64
	seq    int64
	lastMS int64
	now    func() time.Time
}

// NewNode returns a generator for nodeID; out of range ids fall back to 1.
func NewNode(nodeID int64) *Node {
	if nodeID < 0 || nodeID > maxNode {
		nodeID = 1
	}
	return &Node{node: nodeID, now: time.Now}
}

func (n *Node) Next() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	ms := n.now().Sub(epoch).Milliseconds()
	if ms < n.lastMS {
		// clock moved backwards, stay on the last timestamp
		ms = n.lastMS
	}
	if ms == n.lastMS {
		n.seq = (n.seq + 1) & seqMask
		if n.seq == 0 {
			for ms <= n.lastMS {
				time.Sleep(100 * time.Microsecond)
				ms = n.now().Sub(epoch).Milliseconds()
			}
		}
	} else {
		n.seq = 0
	}
	n.lastMS = ms
	return ms<<(nodeBits+seqBits) | n.node<<seqBits | n.seq
}

func (n *Node) NextString() string {
	return strconv.FormatInt(n.Next(), 10)
}

var (
	defaultNode = NewNode(1)
	defaultMu   sync.RWMutex
)

// SetNodeID replaces the process default generator, call once from main.
func SetNodeID(nodeID int64) {
	defaultMu.Lock()
	defaultNode = NewNode(nodeID)
	defaultMu.Unlock()
}

func Generate() int64 {
	defaultMu.RLock()
	n := defaultNode
	defaultMu.RUnlock()
	return n.Next()
}

func GenerateString() string {
	return strconv.FormatInt(Generate(), 10)
}
