// Package discovery 定期把游戏服的在线状态发布到服务发现存储，供登录服选择服务器。
package discovery

import (
	"context"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"
)

// ServerTypeGame 为游戏服在服务发现中的类型名。
const ServerTypeGame = "game"

// ChannelInfo 为单个大厅频道的负载。
type ChannelInfo struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	MaxPlayers  int    `json:"maxPlayers"`
	PlayerCount int    `json:"playerCount"`
}

// ServerInfo 为写入服务发现的游戏服状态。
type ServerInfo struct {
	Type        string        `json:"type"`
	ID          int           `json:"id"`
	Name        string        `json:"name"`
	Address     string        `json:"address"`
	Port        int           `json:"port"`
	Version     string        `json:"version"`
	Instance    string        `json:"instance"`
	PlayerCount int           `json:"playerCount"`
	MaxPlayers  int           `json:"maxPlayers"`
	Channels    []ChannelInfo `json:"channels"`
	CPUPercent  float64       `json:"cpuPercent"`
	MemoryRSS   uint64        `json:"memoryRss"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// Key 返回该服务器在 prefix 下的键，例如 pangya/servers/game/1。
func Key(prefix string, serverType string, id int) string {
	return path.Join(prefix, serverType, strconv.Itoa(id))
}

// Resources 采集当前进程所在机器的 CPU 使用率与进程常驻内存，采集失败的项为 0。
// 第一次调用时 CPU 使用率为 0，之后为两次调用之间的平均值。
func Resources(ctx context.Context) (cpuPercent float64, rss uint64) {
	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		cpuPercent = percents[0]
	}
	if proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		if mem, err := proc.MemoryInfoWithContext(ctx); err == nil {
			rss = mem.RSS
		}
	}
	return cpuPercent, rss
}
