package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"recipe-ingest/internal/pkg/common"
)

// Resolver DNS 解析介面；net.DefaultResolver 滿足此介面，測試時可替換
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// 禁止連線的網段：回送、鏈路本地、RFC1918 私有、CGNAT、
// TEST-NET、多播/保留空間，以及對應的 IPv6 網段
var blockedNetworks []*net.IPNet

func init() {
	cidrs := []string{
		"127.0.0.0/8",     // 回送
		"10.0.0.0/8",      // RFC1918
		"172.16.0.0/12",   // RFC1918
		"192.168.0.0/16",  // RFC1918
		"169.254.0.0/16",  // 鏈路本地
		"100.64.0.0/10",   // CGNAT
		"192.0.2.0/24",    // TEST-NET-1
		"198.51.100.0/24", // TEST-NET-2
		"203.0.113.0/24",  // TEST-NET-3
		"224.0.0.0/4",     // 多播
		"240.0.0.0/4",     // 保留
		"0.0.0.0/8",       // 本網路
		"::1/128",         // IPv6 回送
		"fe80::/10",       // IPv6 鏈路本地
		"fc00::/7",        // IPv6 ULA
		"ff00::/8",        // IPv6 多播
		"::/128",          // 未指定位址
	}
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(fmt.Sprintf("invalid blocked cidr %q: %v", c, err))
		}
		blockedNetworks = append(blockedNetworks, n)
	}
}

// IsBlockedIP 判斷 IP 是否落在禁止網段。
// IPv4 對映的 IPv6 位址先還原為 IPv4 再比對。
func IsBlockedIP(ip net.IP) bool {
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	for _, n := range blockedNetworks {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// ValidateURL 在任何 I/O 之前檢查 URL：必須是絕對位址、
// scheme 限定 http/https、不得內嵌帳密、不得指向回送或檔案
func ValidateURL(raw string) (*url.URL, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, common.NewError(common.ErrCodeMissingURL, "缺少 URL", http.StatusBadRequest, nil)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, common.NewError(common.ErrCodeInvalidPayload, "URL 格式錯誤", http.StatusBadRequest, err)
	}
	if !u.IsAbs() {
		return nil, common.NewError(common.ErrCodeInvalidPayload, "URL 必須是絕對位址", http.StatusBadRequest, nil)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, common.NewError(common.ErrCodeInvalidPayload, fmt.Sprintf("不支援的 scheme: %s", u.Scheme), http.StatusBadRequest, nil)
	}
	if u.User != nil {
		return nil, common.NewError(common.ErrCodeInvalidPayload, "URL 不得內嵌帳密", http.StatusBadRequest, nil)
	}
	host := u.Hostname()
	if host == "" {
		return nil, common.NewError(common.ErrCodeInvalidPayload, "URL 缺少主機名稱", http.StatusBadRequest, nil)
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return nil, common.NewError(common.ErrCodeSSRFBlocked, "禁止連線回送主機", http.StatusForbidden, nil)
	}

	return u, nil
}

// ScreenHost 解析主機的所有 IP，任何一個落在禁止網段即拒絕。
// 主機本身是 IP 字面值時直接比對、不做 DNS 查詢。
func ScreenHost(ctx context.Context, resolver Resolver, host string) error {
	if ip := net.ParseIP(host); ip != nil {
		if IsBlockedIP(ip) {
			return common.NewError(common.ErrCodeSSRFBlocked,
				fmt.Sprintf("位址 %s 位於禁止網段", ip), http.StatusForbidden, nil)
		}
		return nil
	}

	addrs, err := resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return common.NewError(common.ErrCodeSSRFBlocked,
			fmt.Sprintf("無法解析主機 %s", host), http.StatusForbidden, err)
	}
	if len(addrs) == 0 {
		return common.NewError(common.ErrCodeSSRFBlocked,
			fmt.Sprintf("主機 %s 沒有解析結果", host), http.StatusForbidden, nil)
	}

	for _, addr := range addrs {
		if IsBlockedIP(addr.IP) {
			return common.NewError(common.ErrCodeSSRFBlocked,
				fmt.Sprintf("主機 %s 解析到禁止網段 %s", host, addr.IP), http.StatusForbidden, nil)
		}
	}
	return nil
}
