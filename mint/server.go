package mint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/satmint/mintcore/cashu"
	"github.com/satmint/mintcore/cashu/nuts/nut01"
	"github.com/satmint/mintcore/cashu/nuts/nut02"
	"github.com/satmint/mintcore/cashu/nuts/nut03"
	"github.com/satmint/mintcore/cashu/nuts/nut04"
	"github.com/satmint/mintcore/cashu/nuts/nut05"
	"github.com/satmint/mintcore/cashu/nuts/nut07"
	"github.com/satmint/mintcore/cashu/nuts/nut09"
	"github.com/satmint/mintcore/cashu/nuts/nut15"
)

type ServerConfig struct {
	Port int
	// MeltTimeout bounds how long a melt request waits on the Lightning
	// backend before the request handler gives up and leaves the quote
	// PENDING for the background reconciler.
	MeltTimeout time.Duration
}

const defaultMeltTimeout = time.Minute

type MintServer struct {
	httpServer  *http.Server
	mint        *Mint
	meltTimeout time.Duration
}

func SetupMintServer(m *Mint, config ServerConfig) *MintServer {
	meltTimeout := config.MeltTimeout
	if meltTimeout == 0 {
		meltTimeout = defaultMeltTimeout
	}

	mintServer := &MintServer{mint: m, meltTimeout: meltTimeout}
	mintServer.setupHttpServer(config.Port)
	return mintServer
}

func (ms *MintServer) Start() error {
	ms.mint.logInfof("mint server listening on: %v", ms.httpServer.Addr)
	err := ms.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	ms.mint.logInfof("shutdown complete")
	return nil
}

func (ms *MintServer) Shutdown() error {
	ms.mint.logInfof("starting shutdown")
	if err := ms.mint.Shutdown(); err != nil {
		return err
	}
	return ms.httpServer.Shutdown(context.Background())
}

func (ms *MintServer) setupHttpServer(port int) {
	r := mux.NewRouter()

	r.HandleFunc("/v1/keys", ms.getActiveKeysets).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/v1/keysets", ms.getKeysetsList).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/v1/keys/{id}", ms.getKeysetById).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/v1/mint/quote/{method}", ms.mintQuoteRequest).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/v1/mint/quote/{method}/{quote_id}", ms.mintQuoteState).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/v1/mint/{method}", ms.mintTokensRequest).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/v1/swap", ms.swapRequest).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/v1/melt/quote/{method}", ms.meltQuoteRequest).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/v1/melt/quote/{method}/{quote_id}", ms.meltQuoteState).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/v1/melt/{method}", ms.meltTokensRequest).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/v1/checkstate", ms.tokenStateCheck).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/v1/restore", ms.restoreSignatures).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/v1/info", ms.mintInfo).Methods(http.MethodGet, http.MethodOptions)

	r.Use(setupHeaders)

	ms.httpServer = &http.Server{
		Addr:    ":" + strconv.Itoa(port),
		Handler: r,
	}
}

func setupHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		rw.Header().Set("Access-Control-Allow-Origin", "*")
		rw.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		rw.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, origin")

		if req.Method == http.MethodOptions {
			return
		}
		next.ServeHTTP(rw, req)
	})
}

// logRequest preserves the caller's source position in the log entry,
// rather than always pointing at this helper.
func (ms *MintServer) logRequest(req *http.Request, statusCode int, format string, args ...any) {
	var pcs [1]uintptr
	runtime.Callers(2, pcs[:])
	r := slog.NewRecord(time.Now(), slog.LevelInfo, fmt.Sprintf(format, args...), pcs[0])
	r.Add(slog.Group("request", slog.String("method", req.Method), slog.String("url", req.URL.String())))
	if statusCode >= 100 {
		r.Add(slog.Int("code", statusCode))
	}
	_ = ms.mint.logger.Handler().Handle(context.Background(), r)
}

func (ms *MintServer) writeErr(rw http.ResponseWriter, req *http.Request, errResponse error, errLogMsg ...string) {
	logMsg := errResponse.Error()
	if len(errLogMsg) > 0 {
		logMsg = errLogMsg[0]
	}

	var pcs [1]uintptr
	runtime.Callers(2, pcs[:])
	r := slog.NewRecord(time.Now(), slog.LevelError, logMsg, pcs[0])
	r.Add(slog.Group("request", slog.String("method", req.Method), slog.String("url", req.URL.String())),
		slog.Int("code", http.StatusBadRequest))
	_ = ms.mint.logger.Handler().Handle(context.Background(), r)

	rw.WriteHeader(http.StatusBadRequest)
	errRes, _ := json.Marshal(errResponse)
	rw.Write(errRes)
}

// writeInternalErr masks db/lightning-backend errors behind a generic
// response while still logging the real cause.
func (ms *MintServer) writeInternalErr(rw http.ResponseWriter, req *http.Request, err error) bool {
	var cashuErr *cashu.Error
	if errors.As(err, &cashuErr) {
		if cashuErr.Code == cashu.DBErrCode || cashuErr.Code == cashu.LightningBackendErrCode {
			ms.writeErr(rw, req, cashu.StandardErr, cashuErr.Error())
			return true
		}
	}
	return false
}

func (ms *MintServer) getActiveKeysets(rw http.ResponseWriter, req *http.Request) {
	keyset := ms.mint.GetActiveKeyset()
	response := nut01.GetKeysResponse{Keysets: []nut01.Keyset{
		{Id: keyset.Id, Unit: keyset.Unit, Keys: keyset.PublicKeys()},
	}}
	jsonRes, err := json.Marshal(&response)
	if err != nil {
		ms.writeErr(rw, req, cashu.StandardErr)
		return
	}
	ms.logRequest(req, http.StatusOK, "returning active keyset")
	rw.Write(jsonRes)
}

func (ms *MintServer) getKeysetsList(rw http.ResponseWriter, req *http.Request) {
	keysets := ms.mint.ListKeysets()
	response := nut02.GetKeysetsResponse{Keysets: make([]nut02.Keyset, len(keysets))}
	for i, keyset := range keysets {
		response.Keysets[i] = nut02.Keyset{Id: keyset.Id, Unit: keyset.Unit, Active: keyset.Active, InputFeePpk: keyset.InputFeePpk}
	}
	jsonRes, err := json.Marshal(&response)
	if err != nil {
		ms.writeErr(rw, req, cashu.StandardErr)
		return
	}
	ms.logRequest(req, http.StatusOK, "returning list of all keysets")
	rw.Write(jsonRes)
}

func (ms *MintServer) getKeysetById(rw http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	keyset, err := ms.mint.GetKeysetById(id)
	if err != nil {
		ms.writeErr(rw, req, cashu.UnknownKeysetErr)
		return
	}
	response := nut01.GetKeysResponse{Keysets: []nut01.Keyset{
		{Id: keyset.Id, Unit: keyset.Unit, Keys: keyset.PublicKeys()},
	}}
	jsonRes, err := json.Marshal(&response)
	if err != nil {
		ms.writeErr(rw, req, cashu.StandardErr)
		return
	}
	ms.logRequest(req, http.StatusOK, "returning keyset with id: %v", id)
	rw.Write(jsonRes)
}

func (ms *MintServer) mintQuoteRequest(rw http.ResponseWriter, req *http.Request) {
	method := mux.Vars(req)["method"]
	var mintReq nut04.PostMintQuoteBolt11Request
	if err := decodeJsonReqBody(req, &mintReq); err != nil {
		ms.writeErr(rw, req, err)
		return
	}

	ms.logRequest(req, 0, "mint request for %v %v", mintReq.Amount, mintReq.Unit)
	mintQuote, err := ms.mint.RequestMintQuote(req.Context(), method, mintReq.Amount, mintReq.Unit)
	if err != nil {
		if ms.writeInternalErr(rw, req, err) {
			return
		}
		ms.writeErr(rw, req, err)
		return
	}

	response := nut04.PostMintQuoteBolt11Response{
		Quote:   mintQuote.Id,
		Request: mintQuote.PaymentRequest,
		State:   mintQuote.State.String(),
		Expiry:  int64(mintQuote.Expiry),
	}
	jsonRes, err := json.Marshal(&response)
	if err != nil {
		ms.writeErr(rw, req, cashu.StandardErr)
		return
	}
	ms.logRequest(req, http.StatusOK, "created mint quote %v", mintQuote.Id)
	rw.Write(jsonRes)
}

func (ms *MintServer) mintQuoteState(rw http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
	defer cancel()

	mintQuote, err := ms.mint.GetMintQuoteState(ctx, vars["method"], vars["quote_id"])
	if err != nil {
		if ms.writeInternalErr(rw, req, err) {
			return
		}
		ms.writeErr(rw, req, err)
		return
	}

	response := nut04.PostMintQuoteBolt11Response{
		Quote:   mintQuote.Id,
		Request: mintQuote.PaymentRequest,
		State:   mintQuote.State.String(),
		Expiry:  int64(mintQuote.Expiry),
	}
	jsonRes, err := json.Marshal(&response)
	if err != nil {
		ms.writeErr(rw, req, cashu.StandardErr)
		return
	}
	ms.logRequest(req, http.StatusOK, "returning mint quote with state '%v'", mintQuote.State)
	rw.Write(jsonRes)
}

func (ms *MintServer) mintTokensRequest(rw http.ResponseWriter, req *http.Request) {
	method := mux.Vars(req)["method"]
	var mintReq nut04.PostMintBolt11Request
	if err := decodeJsonReqBody(req, &mintReq); err != nil {
		ms.writeErr(rw, req, err)
		return
	}

	signatures, err := ms.mint.MintTokens(req.Context(), method, mintReq.Quote, mintReq.Outputs)
	if err != nil {
		if ms.writeInternalErr(rw, req, err) {
			return
		}
		ms.writeErr(rw, req, err)
		return
	}

	response := nut04.PostMintBolt11Response{Signatures: signatures}
	jsonRes, err := json.Marshal(&response)
	if err != nil {
		ms.writeErr(rw, req, cashu.StandardErr)
		return
	}
	ms.logRequest(req, http.StatusOK, "returning signatures on mint tokens request")
	rw.Write(jsonRes)
}

func (ms *MintServer) swapRequest(rw http.ResponseWriter, req *http.Request) {
	var swapReq nut03.PostSwapRequest
	if err := decodeJsonReqBody(req, &swapReq); err != nil {
		ms.writeErr(rw, req, err)
		return
	}

	signatures, err := ms.mint.Swap(swapReq.Inputs, swapReq.Outputs)
	if err != nil {
		if ms.writeInternalErr(rw, req, err) {
			return
		}
		ms.writeErr(rw, req, err)
		return
	}

	response := nut03.PostSwapResponse{Signatures: signatures}
	jsonRes, err := json.Marshal(&response)
	if err != nil {
		ms.writeErr(rw, req, cashu.StandardErr)
		return
	}
	ms.logRequest(req, http.StatusOK, "returning signatures on swap request")
	rw.Write(jsonRes)
}

func (ms *MintServer) meltQuoteRequest(rw http.ResponseWriter, req *http.Request) {
	method := mux.Vars(req)["method"]
	var meltReq nut05.PostMeltQuoteBolt11Request
	if err := decodeJsonReqBody(req, &meltReq); err != nil {
		ms.writeErr(rw, req, err)
		return
	}

	var mpp *nut15.MppOption
	if meltReq.Options != nil {
		mpp = meltReq.Options.Mpp
	}

	meltQuote, err := ms.mint.RequestMeltQuote(req.Context(), method, meltReq.Request, meltReq.Unit, mpp)
	if err != nil {
		if ms.writeInternalErr(rw, req, err) {
			return
		}
		ms.writeErr(rw, req, err)
		return
	}

	response := nut05.PostMeltQuoteBolt11Response{
		Quote:      meltQuote.Id,
		Amount:     meltQuote.Amount,
		FeeReserve: meltQuote.FeeReserve,
		State:      meltQuote.State.String(),
		Expiry:     int64(meltQuote.Expiry),
	}
	jsonRes, err := json.Marshal(&response)
	if err != nil {
		ms.writeErr(rw, req, cashu.StandardErr)
		return
	}
	ms.logRequest(req, http.StatusOK, "returning melt quote '%v' for invoice with payment hash: %v", meltQuote.Id, meltQuote.PaymentHash)
	rw.Write(jsonRes)
}

func (ms *MintServer) meltQuoteState(rw http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
	defer cancel()

	meltQuote, err := ms.mint.GetMeltQuoteState(ctx, vars["method"], vars["quote_id"])
	if err != nil {
		if ms.writeInternalErr(rw, req, err) {
			return
		}
		ms.writeErr(rw, req, err)
		return
	}

	response := nut05.PostMeltQuoteBolt11Response{
		Quote:      meltQuote.Id,
		Amount:     meltQuote.Amount,
		FeeReserve: meltQuote.FeeReserve,
		State:      meltQuote.State.String(),
		Expiry:     int64(meltQuote.Expiry),
		Preimage:   meltQuote.Preimage,
	}
	jsonRes, err := json.Marshal(&response)
	if err != nil {
		ms.writeErr(rw, req, cashu.StandardErr)
		return
	}
	ms.logRequest(req, http.StatusOK, "returning melt quote with state '%v'", meltQuote.State)
	rw.Write(jsonRes)
}

func (ms *MintServer) meltTokensRequest(rw http.ResponseWriter, req *http.Request) {
	method := mux.Vars(req)["method"]
	var meltReq nut05.PostMeltBolt11Request
	if err := decodeJsonReqBody(req, &meltReq); err != nil {
		ms.writeErr(rw, req, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), ms.meltTimeout)
	defer cancel()

	meltQuote, change, err := ms.mint.MeltTokens(ctx, method, meltReq.Quote, meltReq.Inputs, meltReq.Outputs)
	if err != nil {
		var cashuErr *cashu.Error
		if errors.As(err, &cashuErr) && cashuErr.Code == cashu.LightningBackendErrCode {
			ms.writeErr(rw, req, cashu.BuildCashuError("unable to send payment", cashu.StandardErrCode), cashuErr.Error())
			return
		}
		if ms.writeInternalErr(rw, req, err) {
			return
		}
		ms.writeErr(rw, req, err)
		return
	}

	response := nut05.PostMeltBolt11Response{
		State:    meltQuote.State.String(),
		Preimage: meltQuote.Preimage,
		Change:   change,
	}
	jsonRes, err := json.Marshal(&response)
	if err != nil {
		ms.writeErr(rw, req, cashu.StandardErr)
		return
	}
	ms.logRequest(req, http.StatusOK, "returning from melt tokens for quote '%v', state '%v'", meltQuote.Id, meltQuote.State)
	rw.Write(jsonRes)
}

func (ms *MintServer) tokenStateCheck(rw http.ResponseWriter, req *http.Request) {
	var stateRequest nut07.PostCheckStateRequest
	if err := decodeJsonReqBody(req, &stateRequest); err != nil {
		ms.writeErr(rw, req, err)
		return
	}

	states, err := ms.mint.ProofsStateCheck(stateRequest.Ys)
	if err != nil {
		if ms.writeInternalErr(rw, req, err) {
			return
		}
		ms.writeErr(rw, req, err)
		return
	}

	response := nut07.PostCheckStateResponse{States: states}
	jsonRes, err := json.Marshal(&response)
	if err != nil {
		ms.writeErr(rw, req, cashu.StandardErr)
		return
	}
	ms.logRequest(req, http.StatusOK, "returning proof states")
	rw.Write(jsonRes)
}

func (ms *MintServer) restoreSignatures(rw http.ResponseWriter, req *http.Request) {
	var restoreReq nut09.PostRestoreRequest
	if err := decodeJsonReqBody(req, &restoreReq); err != nil {
		ms.writeErr(rw, req, err)
		return
	}

	outputs, signatures, err := ms.mint.RestoreSignatures(restoreReq.Outputs)
	if err != nil {
		ms.writeErr(rw, req, cashu.StandardErr, err.Error())
		return
	}

	response := nut09.PostRestoreResponse{Outputs: outputs, Signatures: signatures}
	jsonRes, err := json.Marshal(&response)
	if err != nil {
		ms.writeErr(rw, req, cashu.StandardErr)
		return
	}
	ms.logRequest(req, http.StatusOK, "returning signatures from restore request")
	rw.Write(jsonRes)
}

func (ms *MintServer) mintInfo(rw http.ResponseWriter, req *http.Request) {
	info, err := ms.mint.RetrieveMintInfo()
	if err != nil {
		ms.writeErr(rw, req, cashu.StandardErr, err.Error())
		return
	}

	jsonRes, err := json.Marshal(&info)
	if err != nil {
		ms.writeErr(rw, req, cashu.StandardErr)
		return
	}
	ms.logRequest(req, http.StatusOK, "returning mint info")
	rw.Write(jsonRes)
}

func decodeJsonReqBody(req *http.Request, dst any) error {
	ct := req.Header.Get("Content-Type")
	if ct != "" {
		mediaType := strings.ToLower(strings.Split(ct, ";")[0])
		if mediaType != "application/json" {
			return cashu.BuildCashuError("Content-Type header is not application/json", cashu.StandardErrCode)
		}
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return cashu.StandardErr
	}
	req.Body = io.NopCloser(bytes.NewReader(body))

	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(dst); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError

		switch {
		case errors.As(err, &syntaxErr):
			return cashu.BuildCashuError(fmt.Sprintf("bad json at %d", syntaxErr.Offset), cashu.StandardErrCode)
		case errors.As(err, &typeErr):
			return cashu.BuildCashuError(fmt.Sprintf("invalid %v for field %q", typeErr.Value, typeErr.Field), cashu.StandardErrCode)
		case errors.Is(err, io.EOF):
			return cashu.EmptyBodyErr
		default:
			return cashu.BuildCashuError(err.Error(), cashu.StandardErrCode)
		}
	}
	return nil
}
