package mint

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sort"
	"testing"

	"github.com/gorilla/mux"
	"github.com/satmint/mintcore/cashu"
	"github.com/satmint/mintcore/cashu/nuts/nut01"
	"github.com/satmint/mintcore/cashu/nuts/nut02"
	"github.com/satmint/mintcore/crypto"
)

func testMint(t *testing.T, keysets ...*crypto.MintKeyset) *Mint {
	t.Helper()

	m := &Mint{
		keysets: make(map[string]*crypto.MintKeyset),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, keyset := range keysets {
		m.keysets[keyset.Id] = keyset
		if keyset.Active {
			m.activeKeyset = keyset
		}
	}
	return m
}

func TestActiveKeysetsHandler(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "/v1/keys", nil)
	if err != nil {
		t.Fatalf("error creating request: %v", err)
	}

	activeKeyset, err := crypto.GenerateKeyset(SatUnit, 0, 10)
	if err != nil {
		t.Fatalf("error generating keyset: %v", err)
	}
	activeKeyset.Active = true

	mintServer := &MintServer{mint: testMint(t, activeKeyset)}

	w := httptest.NewRecorder()
	mintServer.getActiveKeysets(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status code %d but got %d", http.StatusOK, w.Code)
	}

	expectedKeysetResponse := nut01.GetKeysResponse{
		Keysets: []nut01.Keyset{
			{
				Id:   activeKeyset.Id,
				Unit: activeKeyset.Unit,
				Keys: activeKeyset.PublicKeys(),
			},
		},
	}

	expectedJson, _ := json.Marshal(expectedKeysetResponse)
	if !bytes.Equal(expectedJson, w.Body.Bytes()) {
		t.Fatal("responses do not match")
	}
}

func TestGetKeysetsHandler(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "/v1/keysets", nil)
	if err != nil {
		t.Fatalf("error creating request: %v", err)
	}

	activeKeyset, err := crypto.GenerateKeyset(SatUnit, 150, 10)
	if err != nil {
		t.Fatalf("error generating keyset: %v", err)
	}
	activeKeyset.Active = true
	inactiveKeyset, err := crypto.GenerateKeyset(SatUnit, 200, 10)
	if err != nil {
		t.Fatalf("error generating keyset: %v", err)
	}
	inactiveKeyset.Active = false

	mintServer := &MintServer{mint: testMint(t, activeKeyset, inactiveKeyset)}

	w := httptest.NewRecorder()
	mintServer.getKeysetsList(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status code %d but got %d", http.StatusOK, w.Code)
	}

	expectedKeysetsResponse := nut02.GetKeysetsResponse{
		Keysets: []nut02.Keyset{
			{
				Id:          activeKeyset.Id,
				Unit:        cashu.Sat.String(),
				Active:      true,
				InputFeePpk: 150,
			},
			{
				Id:          inactiveKeyset.Id,
				Unit:        cashu.Sat.String(),
				Active:      false,
				InputFeePpk: 200,
			},
		},
	}

	var keysetsResponse nut02.GetKeysetsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &keysetsResponse); err != nil {
		t.Fatal(err)
	}

	keysets := keysetsResponse.Keysets
	sort.Slice(keysets, func(i, j int) bool {
		return keysets[i].InputFeePpk < keysets[j].InputFeePpk
	})
	keysetsResponse.Keysets = keysets

	if !reflect.DeepEqual(expectedKeysetsResponse, keysetsResponse) {
		t.Fatalf("keyset responses do not match. Expected '%+v' but got '%+v'",
			expectedKeysetsResponse, keysetsResponse)
	}
}

func TestGetKeysetByIdHandler(t *testing.T) {
	activeKeyset, err := crypto.GenerateKeyset(SatUnit, 150, 10)
	if err != nil {
		t.Fatalf("error generating keyset: %v", err)
	}
	activeKeyset.Active = true
	expectedActiveKeyset := nut01.GetKeysResponse{
		Keysets: []nut01.Keyset{
			{Id: activeKeyset.Id, Unit: activeKeyset.Unit, Keys: activeKeyset.PublicKeys()},
		},
	}
	expectedActiveJson, _ := json.Marshal(expectedActiveKeyset)

	inactiveKeyset, err := crypto.GenerateKeyset(SatUnit, 200, 10)
	if err != nil {
		t.Fatalf("error generating keyset: %v", err)
	}
	expectedInactiveKeyset := nut01.GetKeysResponse{
		Keysets: []nut01.Keyset{
			{Id: inactiveKeyset.Id, Unit: inactiveKeyset.Unit, Keys: inactiveKeyset.PublicKeys()},
		},
	}
	expectedInactiveJson, _ := json.Marshal(expectedInactiveKeyset)
	expectedKeysetNotFound, _ := json.Marshal(cashu.UnknownKeysetErr)

	mintServer := &MintServer{mint: testMint(t, activeKeyset, inactiveKeyset)}
	r := mux.NewRouter()
	r.HandleFunc("/v1/keys/{id}", mintServer.getKeysetById)

	tests := []struct {
		name               string
		id                 string
		expectedStatusCode int
		expectedJson       []byte
	}{
		{
			name:               "active keyset",
			id:                 activeKeyset.Id,
			expectedStatusCode: http.StatusOK,
			expectedJson:       expectedActiveJson,
		},
		{
			name:               "inactive keyset",
			id:                 inactiveKeyset.Id,
			expectedStatusCode: http.StatusOK,
			expectedJson:       expectedInactiveJson,
		},
		{
			name:               "non existent keyset",
			id:                 "non-existent-id",
			expectedStatusCode: http.StatusBadRequest,
			expectedJson:       expectedKeysetNotFound,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, "/v1/keys/"+test.id, nil)
			if err != nil {
				t.Fatalf("error creating request: %v", err)
			}

			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != test.expectedStatusCode {
				t.Errorf("expected status code %d but got %d", test.expectedStatusCode, w.Code)
			}

			if !bytes.Equal(test.expectedJson, w.Body.Bytes()) {
				t.Fatal("responses do not match")
			}
		})
	}
}

func TestDecodeJsonReqBodyRejectsWrongContentType(t *testing.T) {
	req, err := http.NewRequest(http.MethodPost, "/v1/swap", bytes.NewReader([]byte(`{}`)))
	if err != nil {
		t.Fatalf("error creating request: %v", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	var dst struct{}
	if err := decodeJsonReqBody(req, &dst); err == nil {
		t.Fatal("expected error for non-json content type but got nil")
	}
}

func TestDecodeJsonReqBodyRejectsEmptyBody(t *testing.T) {
	req, err := http.NewRequest(http.MethodPost, "/v1/swap", bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("error creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var dst struct{}
	err = decodeJsonReqBody(req, &dst)
	if err != cashu.EmptyBodyErr {
		t.Fatalf("expected EmptyBodyErr but got '%v'", err)
	}
}
