package reload

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"modelkeeper/internal/logger"
)

// Debounce window: a burst of file events (editor save, checkout) triggers a
// single restart.
const debounce = 500 * time.Millisecond

/**
 * Watcher 开发模式的文件变更监视插件
 * @property {string} root - 被监视的工作目录
 * @property {func()} onChange - 去抖后的变更回调(触发worker重启)
 * @description
 * - 递归监视工作目录，跳过点目录和常见产物目录
 * - 新增子目录动态加入监视
 */
type Watcher struct {
	root     string
	onChange func()
	fw       *fsnotify.Watcher
}

func New(root string, onChange func()) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{root: root, onChange: onChange, fw: fw}
	if err := w.addRecursive(root); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if skipDir(d.Name()) && path != root {
			return filepath.SkipDir
		}
		return w.fw.Add(path)
	})
}

func skipDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	switch name {
	case "node_modules", "__pycache__", "vendor":
		return true
	}
	return false
}

/**
 * Start 启动监视循环
 * @param {context.Context} ctx - 取消上下文，取消时关闭监视器
 * @description
 * - 事件在去抖窗口内合并，窗口结束触发一次onChange
 */
func (w *Watcher) Start(ctx context.Context) {
	go func() {
		defer w.fw.Close()

		var timer *time.Timer
		pending := make(chan struct{}, 1)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.fw.Events:
				if !ok {
					return
				}
				if event.Op.Has(fsnotify.Create) {
					// 新目录动态加入监视
					w.addRecursive(event.Name)
				}
				logger.Debugf("File change detected: %s", event)
				if timer == nil {
					timer = time.AfterFunc(debounce, func() {
						select {
						case pending <- struct{}{}:
						default:
						}
					})
				} else {
					timer.Reset(debounce)
				}
			case <-pending:
				timer = nil
				logger.Infof("Source changed, restarting dev server")
				w.onChange()
			case err, ok := <-w.fw.Errors:
				if !ok {
					return
				}
				logger.Warnf("File watcher error: %v", err)
			}
		}
	}()
}
