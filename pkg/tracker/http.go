// Copyright © 2021 Rak Laptudirm <raklaptudirm@gmail.com>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tracker

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/bitforge/gossamer/pkg/bencode"
	"github.com/bitforge/gossamer/pkg/peer"
)

// announceHTTP issues a GET announce against an HTTP or HTTPS tracker
// and parses its bencoded response.
//
// The seeders/leechers mapping below (complete -> Leechers, incomplete
// -> Seeders) inverts the conventional BitTorrent meaning. It mirrors a
// documented upstream quirk rather than the usual convention; see the
// design notes for why this mapping was kept instead of "corrected".
func (c *Client) announceHTTP(ctx context.Context, u *url.URL, req Request) (*Response, error) {
	params := url.Values{
		"info_hash":  []string{string(req.InfoHash[:])},
		"peer_id":    []string{string(c.PeerID[:])},
		"port":       []string{strconv.Itoa(int(req.Port))},
		"uploaded":   []string{strconv.FormatInt(req.Uploaded, 10)},
		"downloaded": []string{strconv.FormatInt(req.Downloaded, 10)},
		"left":       []string{strconv.FormatInt(req.Left, 10)},
	}

	if req.Compact {
		params.Set("compact", "1")
	}
	if req.NoPeerID {
		params.Set("no_peer_id", "1")
	}
	if req.Event != "" && req.Event != EventNone {
		params.Set("event", string(req.Event))
	}
	if req.IP != "" {
		params.Set("ip", req.IP)
	}
	if req.NumWant > 0 {
		params.Set("numwant", strconv.Itoa(req.NumWant))
	}
	if req.Key != 0 {
		params.Set("key", strconv.FormatUint(uint64(req.Key), 10))
	}

	announce := *u
	announce.RawQuery = params.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, announce.String(), nil)
	if err != nil {
		return nil, &TrackerError{Op: "announce_http", Err: err}
	}

	res, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TrackerError{Op: "announce_http", Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &TrackerError{Op: "announce_http", Err: fmt.Errorf("tracker returned status %d", res.StatusCode)}
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &TrackerError{Op: "announce_http", Err: err}
	}

	v, err := bencode.Decode(body)
	if err != nil {
		return nil, &TrackerError{Op: "announce_http", Err: err}
	}

	dict, ok := v.(map[string]any)
	if !ok {
		return nil, &TrackerError{Op: "announce_http", Err: fmt.Errorf("response is not a dictionary")}
	}

	if failure, ok := dict["failure reason"].(string); ok && failure != "" {
		return nil, &TrackerError{Op: "announce_http", Err: fmt.Errorf("%s", failure)}
	}

	peers, err := parseHTTPPeers(dict["peers"])
	if err != nil {
		return nil, &TrackerError{Op: "announce_http", Err: err}
	}

	return &Response{
		Peers:       peers,
		Interval:    asInt(dict["interval"]),
		MinInterval: asInt(dict["min interval"]),
		Leechers:    asInt(dict["complete"]),
		Seeders:     asInt(dict["incomplete"]),
		TrackerID:   asString(dict["tracker id"]),
	}, nil
}

func parseHTTPPeers(v any) ([]Peer, error) {
	switch peers := v.(type) {
	case string:
		compact, err := peer.Unmarshal([]byte(peers))
		if err != nil {
			return nil, err
		}
		out := make([]Peer, len(compact))
		for i, p := range compact {
			out[i] = Peer{IP: p.IP, Port: p.Port}
		}
		return out, nil

	case []any:
		out := make([]Peer, 0, len(peers))
		for _, e := range peers {
			dict, ok := e.(map[string]any)
			if !ok {
				continue
			}

			var id [20]byte
			copy(id[:], asString(dict["peer id"]))

			out = append(out, Peer{
				IP:   net.ParseIP(asString(dict["ip"])),
				Port: uint16(asInt(dict["port"])),
				ID:   id,
			})
		}
		return out, nil

	case nil:
		return nil, nil

	default:
		return nil, fmt.Errorf("unrecognized peers encoding")
	}
}

func asInt(v any) int {
	n, _ := v.(int64)
	return int(n)
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
