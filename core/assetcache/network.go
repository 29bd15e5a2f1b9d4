package assetcache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// HTTPDoer *http.Client 满足该接口
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// hopHeaders 逐跳头，不转发也不缓存
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// network 把请求转发到源站
type network struct {
	origin *url.URL
	client HTTPDoer
}

func (n *network) target(requestURI string) (string, error) {
	ref, err := url.Parse(requestURI)
	if err != nil {
		return "", fmt.Errorf("parse request uri: %w", err)
	}
	return n.origin.ResolveReference(ref).String(), nil
}

// get 无请求体的 GET，用于安装阶段预缓存
func (n *network) get(ctx context.Context, path string) (*Response, error) {
	target, err := n.target(path)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return n.do(req)
}

// forward 转发客户端请求，保留方法、请求体与端到端请求头
func (n *network) forward(r *http.Request) (*Response, error) {
	target, err := n.target(r.URL.RequestURI())
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(r.Context(), r.Method, target, r.Body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header = r.Header.Clone()
	// 交给 Transport 协商压缩，缓存里只存解压后的内容
	req.Header.Del("Accept-Encoding")
	stripHop(req.Header)
	req.ContentLength = r.ContentLength
	if ip := clientIP(r); ip != "" {
		req.Header.Set("X-Forwarded-For", ip)
	}
	return n.do(req)
}

func (n *network) do(req *http.Request) (*Response, error) {
	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", req.URL.Path, err)
	}
	header := resp.Header.Clone()
	stripHop(header)
	header.Del("Content-Length")
	return &Response{Status: resp.StatusCode, Header: header, Body: body}, nil
}

func stripHop(h http.Header) {
	for _, k := range hopHeaders {
		h.Del(k)
	}
}

func clientIP(r *http.Request) string {
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	if prior := r.Header.Get("X-Forwarded-For"); prior != "" {
		return prior + ", " + host
	}
	return host
}

// write 把响应写回客户端，source 标记命中来源
func write(w http.ResponseWriter, resp *Response, source string) {
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set("X-Asset-Cache", source)
	w.WriteHeader(resp.Status)
	w.Write(resp.Body)
}
