package nacos

import (
	"sync"

	"PPRealtime/logger"

	"github.com/nacos-group/nacos-sdk-go/v2/clients/config_client"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	"go.uber.org/zap"
)

// Source is the part of config_client.IConfigClient the watcher needs.
type Source interface {
	GetConfig(param vo.ConfigParam) (string, error)
	ListenConfig(param vo.ConfigParam) error
	CancelListenConfig(param vo.ConfigParam) error
}

var _ Source = (config_client.IConfigClient)(nil)

// Watcher keeps the latest content of one data id.
type Watcher struct {
	src    Source
	dataID string
	group  string

	mu      sync.RWMutex
	current string
}

func NewWatcher(src Source, c Config) *Watcher {
	return &Watcher{src: src, dataID: c.DataID, group: c.Group}
}

// Fetch reads the document once and remembers it.
func (w *Watcher) Fetch() (string, error) {
	content, err := w.src.GetConfig(vo.ConfigParam{DataId: w.dataID, Group: w.group})
	if err != nil {
		return "", err
	}
	w.set(content)
	return content, nil
}

// Watch registers onChange for later updates. onChange runs on the SDK's goroutine.
func (w *Watcher) Watch(onChange func(content string)) error {
	return w.src.ListenConfig(vo.ConfigParam{
		DataId: w.dataID,
		Group:  w.group,
		OnChange: func(namespace, group, dataId, data string) {
			logger.Info("nacos config changed",
				zap.String("namespace", namespace), zap.String("group", group), zap.String("dataId", dataId))
			w.set(data)
			if onChange != nil {
				onChange(data)
			}
		},
	})
}

func (w *Watcher) Stop() error {
	return w.src.CancelListenConfig(vo.ConfigParam{DataId: w.dataID, Group: w.group})
}

func (w *Watcher) Current() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *Watcher) set(data string) {
	w.mu.Lock()
	w.current = data
	w.mu.Unlock()
}
