package card

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"regexp"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Server", func() {
	var (
		service     *Service
		server      *Server
		auth        BasicAuth
		rec         *mockRecognizer
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		server = NewServerWithMux(service, auth, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions} {
			ghttpServer.RouteToHandler(method, regexp.MustCompile(`.*`), server.Handler().ServeHTTP)
		}
	}

	startSession := func() string {
		resp, err := http.Post(ghttpServer.URL()+"/api/sessions", "application/json", nil)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		var sc Scan
		Expect(json.NewDecoder(resp.Body).Decode(&sc)).To(Succeed())
		return sc.ID
	}

	postFrame := func(id string, lines ...string) *http.Response {
		body, err := json.Marshal(FrameRequest{Lines: lines})
		Expect(err).NotTo(HaveOccurred())
		resp, err := http.Post(ghttpServer.URL()+"/api/sessions/"+id+"/frames", "application/json", bytes.NewReader(body))
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	BeforeEach(func() {
		rec = &mockRecognizer{lines: []string{"4111 1111 1111 1111", "VALID THRU 12/25"}}
		service = newTestService(rec, newCompletions(), &mockTimeSource{now: time.Now()})
		auth = BasicAuth{}
		ghttpServer = nil
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		service.Close()
	})

	Describe("handleStartSession", func() {
		It("should return the new session as JSON", func() {
			resp, err := http.Post(ghttpServer.URL()+"/api/sessions", "application/json", nil)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})

	Describe("handleSubmitFrame", func() {
		It("should confirm and complete after four agreeing frames", func() {
			id := startSession()
			var sc Scan
			for i := 0; i < 4; i++ {
				resp := postFrame(id, "4111 1111 1111 1111", "EXP 12/25")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				sc = Scan{}
				Expect(json.NewDecoder(resp.Body).Decode(&sc)).To(Succeed())
				resp.Body.Close()
			}
			Expect(sc.Status.Complete).To(BeTrue())
			Expect(sc.Status.Result).NotTo(BeNil())
			Expect(string(sc.Status.Result.CardNumber)).To(Equal("4111111111111111"))
			Expect(sc.Status.Result.Expiry.Month).To(Equal("12"))
			Expect(sc.Status.Result.Expiry.Year).To(Equal("25"))
		})

		It("should return 404 for an unknown session", func() {
			resp := postFrame("missing", "12/25")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("should reject a malformed body", func() {
			id := startSession()
			resp, err := http.Post(ghttpServer.URL()+"/api/sessions/"+id+"/frames", "application/json", bytes.NewBufferString("{"))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("handleSubmitImage", func() {
		upload := func(id string) *http.Response {
			body := &bytes.Buffer{}
			writer := multipart.NewWriter(body)
			part, err := writer.CreateFormFile("file", "frame.png")
			Expect(err).NotTo(HaveOccurred())
			_, err = part.Write([]byte("fake png"))
			Expect(err).NotTo(HaveOccurred())
			Expect(writer.Close()).To(Succeed())

			req, err := http.NewRequest(http.MethodPost, ghttpServer.URL()+"/api/sessions/"+id+"/images", body)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Content-Type", writer.FormDataContentType())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			return resp
		}

		It("should recognize the frame and count it", func() {
			id := startSession()
			resp := upload(id)
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var sc Scan
			Expect(json.NewDecoder(resp.Body).Decode(&sc)).To(Succeed())
			Expect(sc.Status.Frames).To(Equal(1))
		})

		It("should return 400 without a file", func() {
			id := startSession()
			resp, err := http.Post(ghttpServer.URL()+"/api/sessions/"+id+"/images", "application/json", nil)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("handleGetSession and handleListSessions", func() {
		It("should return a session and list it", func() {
			id := startSession()

			resp, err := http.Get(ghttpServer.URL() + "/api/sessions/" + id)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			resp.Body.Close()

			resp, err = http.Get(ghttpServer.URL() + "/api/sessions")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			var scans []*Scan
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(json.Unmarshal(body, &scans)).To(Succeed())
			Expect(scans).To(HaveLen(1))
		})

		It("should return an empty array when there are no sessions", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/sessions")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(bytes.TrimSpace(body))).To(Equal("[]"))
		})
	})

	Describe("handleCancelSession", func() {
		It("should delete the session", func() {
			id := startSession()
			req, err := http.NewRequest(http.MethodDelete, ghttpServer.URL()+"/api/sessions/"+id, nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))

			resp, err = http.Get(ghttpServer.URL() + "/api/sessions/" + id)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("CORS preflight", func() {
		It("should answer OPTIONS with no content", func() {
			req, err := http.NewRequest(http.MethodOptions, ghttpServer.URL()+"/api/sessions", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "scanner", Password: "secret"}
			setupServer()
		})

		It("should reject requests without credentials", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/sessions")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
		})

		It("should accept valid credentials", func() {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/sessions", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("scanner:secret")))
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("should leave the health check open", func() {
			resp, err := http.Get(ghttpServer.URL() + "/healthz")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})
})
