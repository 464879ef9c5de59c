package download

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddress = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

type fakeCodeReader struct {
	code   []byte
	err    error
	calls  int
	closed bool
}

func (f *fakeCodeReader) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	f.calls++
	return f.code, f.err
}

func (f *fakeCodeReader) Close() { f.closed = true }

func etherscanServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/api", r.URL.Path)
		assert.Equal(t, "getsourcecode", r.URL.Query().Get("action"))
		assert.Equal(t, "test-key", r.URL.Query().Get("apikey"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGetContractSource_Verified(t *testing.T) {
	srv := etherscanServer(t, `{"status":"1","message":"OK","result":[{"SourceCode":"contract A { function setFee() {} }","ContractName":"A"}]}`)

	src, verified, err := GetContractSource(context.Background(), testAddress, EtherscanConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL + "/v2",
	})
	require.NoError(t, err)
	assert.True(t, verified)
	assert.Equal(t, "contract A { function setFee() {} }", src)
}

func TestGetContractSource_NotVerified(t *testing.T) {
	srv := etherscanServer(t, `{"status":"1","message":"OK","result":[{"SourceCode":""}]}`)

	_, verified, err := GetContractSource(context.Background(), testAddress, EtherscanConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL + "/v2",
	})
	require.NoError(t, err)
	assert.False(t, verified)
}

func TestGetContractSource_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, _, err := GetContractSource(context.Background(), testAddress, EtherscanConfig{
		APIKey:  "k",
		BaseURL: srv.URL,
	})
	assert.Error(t, err)
}

func TestFlattenSource(t *testing.T) {
	single := "contract A {}"
	assert.Equal(t, single, FlattenSource(single))

	multi := `{{"language":"Solidity","sources":{"b.sol":{"content":"contract B { onlyOwner }"},"a.sol":{"content":"contract A {}"}}}}`
	assert.Equal(t, "// File: a.sol\ncontract A {}\n// File: b.sol\ncontract B { onlyOwner }\n", FlattenSource(multi))

	plain := `{"x.sol":{"content":"maxSell"}}`
	assert.Equal(t, "// File: x.sol\nmaxSell\n", FlattenSource(plain))

	broken := "{not json"
	assert.Equal(t, broken, FlattenSource(broken))
}

func TestFetcher_VerifiedSource(t *testing.T) {
	srv := etherscanServer(t, `{"status":"1","message":"OK","result":[{"SourceCode":"contract T { bool tradingEnabled; }"}]}`)
	reader := &fakeCodeReader{code: []byte{0x60, 0x80}}
	f := newFetcher("eth", reader, EtherscanConfig{APIKey: "test-key", BaseURL: srv.URL + "/v2"}, nil)
	defer f.Close()

	c, err := f.FetchSource(context.Background(), testAddress)
	require.NoError(t, err)
	assert.True(t, c.IsOpenSource)
	assert.Equal(t, testAddress, c.Address)
	assert.Equal(t, "eth", c.Chain)
	assert.Equal(t, 0, reader.calls)
}

func TestFetcher_BytecodeFallback(t *testing.T) {
	srv := etherscanServer(t, `{"status":"0","message":"NOTOK","result":[]}`)
	reader := &fakeCodeReader{code: []byte{0x60, 0x80, 0x60, 0x40, 0x52, 0x34, 0x80, 0x15}}
	f := newFetcher("eth", reader, EtherscanConfig{APIKey: "test-key", BaseURL: srv.URL + "/v2"}, nil)

	c, err := f.Fetch(context.Background(), testAddress)
	require.NoError(t, err)
	assert.False(t, c.IsOpenSource)
	assert.Equal(t, "0x6080604052348015", c.Code)

	_, err = f.FetchSource(context.Background(), testAddress)
	assert.True(t, errors.Is(err, ErrBytecodeOnly))

	f.Close()
	assert.True(t, reader.closed)
}

func TestFetcher_Errors(t *testing.T) {
	f := newFetcher("eth", nil, EtherscanConfig{}, nil)
	defer f.Close()

	_, err := f.Fetch(context.Background(), "0x123")
	assert.True(t, errors.Is(err, ErrInvalidAddress))

	_, err = f.Fetch(context.Background(), testAddress)
	assert.True(t, errors.Is(err, ErrNotFound))

	empty := newFetcher("eth", &fakeCodeReader{}, EtherscanConfig{}, nil)
	defer empty.Close()
	_, err = empty.Fetch(context.Background(), testAddress)
	assert.True(t, errors.Is(err, ErrNotFound))

	failing := newFetcher("eth", &fakeCodeReader{err: errors.New("rpc down")}, EtherscanConfig{}, nil)
	defer failing.Close()
	_, err = failing.Fetch(context.Background(), testAddress)
	assert.Error(t, err)
}

func TestIsOnlyBytecode(t *testing.T) {
	assert.True(t, IsOnlyBytecode("0x6080604052348015"))
	assert.True(t, IsOnlyBytecode("0x"))
	assert.False(t, IsOnlyBytecode("pragma solidity ^0.8.0;"))
	assert.False(t, IsOnlyBytecode("0x6080zz04052348015"))
}

func TestNewFetcher_RPCThroughProxy(t *testing.T) {
	var hits atomic.Int32
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "rpc.scamscan.invalid:8545", r.Host)

		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			return
		}
		assert.Equal(t, "eth_getCode", req.Method)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  "0x6080604052",
		})
	}))
	t.Cleanup(proxy.Close)

	f, err := NewFetcher(context.Background(), FetcherConfig{
		Chain:   "eth",
		RPCURL:  "http://rpc.scamscan.invalid:8545",
		Proxy:   proxy.URL,
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)
	defer f.Close()

	c, err := f.Fetch(context.Background(), testAddress)
	require.NoError(t, err)
	assert.Equal(t, "0x6080604052", c.Code)
	assert.False(t, c.IsOpenSource)
	assert.Positive(t, hits.Load())
}
