// Package forgetest runs an in-process fake of the conversion service that
// serves viewables written with svftest.
package forgetest

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"derivdiff/internal/svf"
)

const (
	ClientID     = "test-client"
	ClientSecret = "test-secret"
	Token        = "test-token"
)

// Viewable is a scene package directory served under GUID.
type Viewable struct {
	GUID string
	Dir  string
}

// Object is an uploaded model and its derivatives.
type Object struct {
	Bucket    string
	Key       string
	Viewables []Viewable
}

// ObjectID is the storage id of o.
func (o Object) ObjectID() string {
	return "urn:adsk.objects:os.object:" + o.Bucket + "/" + o.Key
}

// URN is the derivative URN of o.
func (o Object) URN() string {
	return base64.RawURLEncoding.EncodeToString([]byte(o.ObjectID()))
}

// Service is the fake service. Requests records every API path served.
type Service struct {
	*httptest.Server

	mu       sync.Mutex
	requests []string
	objects  map[string]Object // by bucket/key
	byURN    map[string]Object
	files    map[string]string // derivative URN -> local file
}

// New starts a fake service for objects. It is closed when t finishes.
func New(t testing.TB, objects ...Object) *Service {
	t.Helper()
	s := &Service{
		objects: map[string]Object{},
		byURN:   map[string]Object{},
		files:   map[string]string{},
	}
	for _, o := range objects {
		s.objects[o.Bucket+"/"+o.Key] = o
		s.byURN[o.URN()] = o
		for _, v := range o.Viewables {
			base := viewableBase(o, v)
			s.files[base+"/"+svf.FileName] = filepath.Join(v.Dir, svf.FileName)
			r, err := svf.Open(v.Dir)
			if err != nil {
				t.Fatalf("open viewable %s: %v", v.Dir, err)
			}
			for _, a := range r.Manifest().Assets {
				if !a.Embedded() {
					s.files[path.Join(base, a.URI)] = filepath.Join(v.Dir, filepath.FromSlash(a.URI))
				}
			}
		}
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// Requests returns the paths served so far, in order.
func (s *Service) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func viewableBase(o Object, v Viewable) string {
	return "urn:adsk.viewing:fs.file:" + o.URN() + "/output/" + v.GUID
}

func (s *Service) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r.URL.Path)
	s.mu.Unlock()

	if r.URL.Path == "/authentication/v2/token" {
		s.token(w, r)
		return
	}
	if r.Header.Get("Authorization") != "Bearer "+Token {
		http.Error(w, `{"developerMessage":"missing token"}`, http.StatusUnauthorized)
		return
	}
	switch p := r.URL.Path; {
	case strings.HasPrefix(p, "/oss/v2/buckets/") && strings.HasSuffix(p, "/details"):
		s.details(w, p)
	case strings.HasPrefix(p, "/modelderivative/v2/designdata/"):
		s.derivative(w, strings.TrimPrefix(p, "/modelderivative/v2/designdata/"))
	default:
		http.NotFound(w, r)
	}
}

func (s *Service) token(w http.ResponseWriter, r *http.Request) {
	id, secret, ok := r.BasicAuth()
	if !ok || id != ClientID || secret != ClientSecret {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
		return
	}
	writeJSON(w, map[string]any{"access_token": Token, "token_type": "Bearer", "expires_in": 3600})
}

func (s *Service) details(w http.ResponseWriter, p string) {
	parts := strings.Split(strings.TrimPrefix(p, "/oss/v2/buckets/"), "/")
	if len(parts) != 4 || parts[1] != "objects" {
		http.Error(w, "bad path", http.StatusBadRequest)
		return
	}
	o, ok := s.objects[parts[0]+"/"+parts[2]]
	if !ok {
		http.Error(w, `{"reason":"Object not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{"bucketKey": o.Bucket, "objectKey": o.Key, "objectId": o.ObjectID(), "size": 1024})
}

func (s *Service) derivative(w http.ResponseWriter, rest string) {
	urn, deriv, _ := strings.Cut(rest, "/manifest")
	o, ok := s.byURN[urn]
	if !ok {
		http.Error(w, `{"diagnostic":"Requested resource does not exist."}`, http.StatusNotFound)
		return
	}
	if deriv == "" {
		writeJSON(w, manifest(o))
		return
	}
	file, ok := s.files[strings.TrimPrefix(deriv, "/")]
	if !ok {
		http.Error(w, "derivative not found", http.StatusNotFound)
		return
	}
	data, err := os.ReadFile(file)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data)
}

func manifest(o Object) map[string]any {
	var children []any
	for _, v := range o.Viewables {
		children = append(children, map[string]any{
			"guid": v.GUID + "-geometry", "type": "geometry", "role": "3d", "name": "3D View",
			"children": []any{
				map[string]any{
					"guid": v.GUID, "type": "resource", "role": "graphics",
					"mime": "application/autodesk-svf", "urn": viewableBase(o, v) + "/" + svf.FileName,
				},
				map[string]any{
					"guid": v.GUID + "-thumb", "type": "resource", "role": "thumbnail",
					"mime": "image/png", "urn": viewableBase(o, v) + "/thumb.png",
				},
			},
		})
	}
	return map[string]any{
		"type": "manifest", "status": "success", "progress": "complete", "urn": o.URN(),
		"derivatives": []any{map[string]any{
			"name": o.Key, "outputType": "svf", "status": "success", "children": children,
		}},
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, fmt.Sprint(err), http.StatusInternalServerError)
	}
}
