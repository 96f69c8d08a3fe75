package download

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mirareader/mira-pool/commons"
	"github.com/mirareader/mira-pool/service/image"
	pool_io "github.com/mirareader/mira-pool/service/io"
	"github.com/mirareader/mira-pool/service/remote"
	"github.com/mirareader/mira-pool/service/storage"
	"github.com/mirareader/mira-pool/utils"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"golang.org/x/xerrors"
)

var (
	errJobCanceled    = xerrors.New("download job canceled")
	errNoChapterData  = xerrors.New("no chapter data")
	errNoChapterPages = xerrors.New("chapter has no pages")
)

// DownloaderConfig configures ChapterDownloader
type DownloaderConfig struct {
	// PollInterval bounds how long the worker parks without rechecking the queue
	PollInterval time.Duration
	// PageRateLimit is the max pages fetched per second, 0 for unlimited
	PageRateLimit float64
}

// NewDownloaderConfigFrom makes DownloaderConfig from service config
func NewDownloaderConfigFrom(config *commons.Config) *DownloaderConfig {
	return &DownloaderConfig{
		PollInterval:  config.DownloadPollInterval,
		PageRateLimit: config.PageRateLimit,
	}
}

// runningJob is the job the worker is processing
type runningJob struct {
	key      JobKey
	cancel   context.CancelFunc
	canceled bool
}

// ChapterDownloader downloads queued chapters one at a time, in enqueue order.
// Pages of a chapter are fetched and written sequentially.
type ChapterDownloader struct {
	config  *DownloaderConfig
	source  remote.MangaSource
	loader  image.PageLoader
	storage *storage.MediaStorage
	limiter *rate.Limiter

	queue *pool_io.AsyncQueue[JobKey]
	jobs  map[JobKey]Job
	// running and progress belong to the head job
	running     *runningJob
	progressKey JobKey
	progress    float64
	mutex       sync.Mutex

	stateListeners   []StateChangeListener
	failureListeners []FailureListener
	listenerMutex    sync.RWMutex

	terminate context.CancelFunc
	waitGroup sync.WaitGroup
	started   bool
	lifeMutex sync.Mutex
}

// NewChapterDownloader creates a new ChapterDownloader, call Start to run the worker
func NewChapterDownloader(config *DownloaderConfig, source remote.MangaSource, loader image.PageLoader, store *storage.MediaStorage) *ChapterDownloader {
	var limiter *rate.Limiter
	if config.PageRateLimit > 0 {
		burst := int(config.PageRateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.PageRateLimit), burst)
	}

	if config.PollInterval <= 0 {
		config.PollInterval = commons.DownloadPollIntervalDefault
	}

	return &ChapterDownloader{
		config:  config,
		source:  source,
		loader:  loader,
		storage: store,
		limiter: limiter,

		queue: pool_io.NewAsyncQueue[JobKey](),
		jobs:  map[JobKey]Job{},
	}
}

// Start runs the worker
func (downloader *ChapterDownloader) Start() {
	logger := log.WithFields(log.Fields{
		"package":  "download",
		"struct":   "ChapterDownloader",
		"function": "Start",
	})

	downloader.lifeMutex.Lock()
	defer downloader.lifeMutex.Unlock()

	if downloader.started {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	downloader.terminate = cancel
	downloader.started = true

	logger.Info("Starting chapter download worker")

	downloader.waitGroup.Add(1)
	go func() {
		defer downloader.waitGroup.Done()
		downloader.work(ctx)
	}()
}

// Stop stops the worker and waits for it, queued jobs are kept
func (downloader *ChapterDownloader) Stop() {
	logger := log.WithFields(log.Fields{
		"package":  "download",
		"struct":   "ChapterDownloader",
		"function": "Stop",
	})

	downloader.lifeMutex.Lock()
	defer downloader.lifeMutex.Unlock()

	if !downloader.started {
		return
	}

	logger.Info("Stopping chapter download worker")
	downloader.terminate()
	downloader.waitGroup.Wait()
	downloader.started = false
}

// OnStateChange registers a state change listener
func (downloader *ChapterDownloader) OnStateChange(listener StateChangeListener) {
	downloader.listenerMutex.Lock()
	defer downloader.listenerMutex.Unlock()

	downloader.stateListeners = append(downloader.stateListeners, listener)
}

// OnFailure registers a failure listener
func (downloader *ChapterDownloader) OnFailure(listener FailureListener) {
	downloader.listenerMutex.Lock()
	defer downloader.listenerMutex.Unlock()

	downloader.failureListeners = append(downloader.failureListeners, listener)
}

func (downloader *ChapterDownloader) notifyStateChange(key JobKey, state DownloadState) {
	downloader.listenerMutex.RLock()
	listeners := downloader.stateListeners
	downloader.listenerMutex.RUnlock()

	for _, listener := range listeners {
		listener(key, state)
	}
}

func (downloader *ChapterDownloader) notifyFailure(job Job, err error) {
	downloader.listenerMutex.RLock()
	listeners := downloader.failureListeners
	downloader.listenerMutex.RUnlock()

	for _, listener := range listeners {
		listener(job, err)
	}
}

// Enqueue queues a job, returns false if a job with the same key or the same
// chapter location is queued already, or the chapter is downloaded
func (downloader *ChapterDownloader) Enqueue(job Job) bool {
	logger := log.WithFields(log.Fields{
		"package":  "download",
		"struct":   "ChapterDownloader",
		"function": "Enqueue",
	})

	if downloader.storage.IsChapterDownloaded(job.ChapterRef()) {
		logger.Debugf("Chapter of %s is downloaded already", job.ToString())
		return false
	}

	downloader.mutex.Lock()
	if _, ok := downloader.jobs[job.Key]; ok {
		downloader.mutex.Unlock()
		return false
	}

	ref := job.ChapterRef()
	for _, queued := range downloader.jobs {
		if queued.ChapterRef() == ref {
			downloader.mutex.Unlock()
			logger.Warnf("Refusing %s, %s writes the same chapter", job.ToString(), queued.ToString())
			return false
		}
	}

	downloader.jobs[job.Key] = job
	downloader.queue.Put(job.Key)
	downloader.mutex.Unlock()

	logger.Infof("Enqueued %s", job.ToString())
	promCounterForEnqueuedJobs.Inc()
	promGaugeForPendingJobs.Inc()

	downloader.notifyStateChange(job.Key, DownloadStatePending)
	return true
}

// Jobs returns queued jobs in enqueue order, the job being downloaded first
func (downloader *ChapterDownloader) Jobs() []Job {
	downloader.mutex.Lock()
	defer downloader.mutex.Unlock()

	keys := downloader.queue.Items()
	jobs := make([]Job, 0, len(keys))
	for _, key := range keys {
		if job, ok := downloader.jobs[key]; ok {
			jobs = append(jobs, job)
		}
	}
	return jobs
}

// Pending returns the number of queued jobs
func (downloader *ChapterDownloader) Pending() int {
	return downloader.queue.Pending()
}

// State returns the download state of the job's chapter
func (downloader *ChapterDownloader) State(job Job) DownloadState {
	downloader.mutex.Lock()
	running := downloader.running != nil && downloader.running.key == job.Key
	_, queued := downloader.jobs[job.Key]
	downloader.mutex.Unlock()

	switch {
	case running:
		return DownloadStateDownloading
	case queued:
		return DownloadStatePending
	case downloader.storage.IsChapterDownloaded(job.ChapterRef()):
		return DownloadStateDownloaded
	default:
		return DownloadStateNone
	}
}

// Progress returns the key of the job being downloaded and its progress in [0, 1]
func (downloader *ChapterDownloader) Progress() (JobKey, float64) {
	downloader.mutex.Lock()
	defer downloader.mutex.Unlock()

	return downloader.progressKey, downloader.progress
}

func (downloader *ChapterDownloader) setProgress(key JobKey, progress float64) {
	downloader.mutex.Lock()
	defer downloader.mutex.Unlock()

	downloader.progressKey = key
	downloader.progress = progress
}

// Cancel removes a queued job. A job being downloaded is interrupted and its partial pages are removed.
// Returns false if the job is not queued.
func (downloader *ChapterDownloader) Cancel(key JobKey) bool {
	logger := log.WithFields(log.Fields{
		"package":  "download",
		"struct":   "ChapterDownloader",
		"function": "Cancel",
	})

	downloader.mutex.Lock()
	if _, ok := downloader.jobs[key]; !ok {
		downloader.mutex.Unlock()
		return false
	}

	delete(downloader.jobs, key)
	downloader.queue.Remove(key)

	isRunning := false
	if downloader.running != nil && downloader.running.key == key {
		downloader.running.canceled = true
		downloader.running.cancel()
		isRunning = true
	}
	downloader.mutex.Unlock()

	logger.Infof("Canceled %s", key.ToString())
	promCounterForCanceledJobs.Inc()
	promGaugeForPendingJobs.Dec()

	// the worker reports the running job once it has cleaned up
	if !isRunning {
		downloader.notifyStateChange(key, DownloadStateNone)
	}
	return true
}

// DeleteChapter cancels the job if queued and deletes downloaded pages.
// A page write racing with the deletion is refused by storage.
func (downloader *ChapterDownloader) DeleteChapter(job Job) (bool, error) {
	canceled := downloader.Cancel(job.Key)

	deleted, err := downloader.storage.DeleteDownloadedChapter(job.ChapterRef())
	if err != nil {
		return false, err
	}

	if deleted && !canceled {
		downloader.notifyStateChange(job.Key, DownloadStateNone)
	}
	return canceled || deleted, nil
}

// DeleteManga cancels all queued jobs of a manga and deletes its stored pages and cover
func (downloader *ChapterDownloader) DeleteManga(sourceID string, mangaID string) error {
	for _, job := range downloader.Jobs() {
		if job.Key.SourceID == sourceID && job.Key.MangaID == mangaID {
			downloader.Cancel(job.Key)
		}
	}

	return downloader.storage.DeleteManga(sourceID, mangaID)
}

func (downloader *ChapterDownloader) work(ctx context.Context) {
	logger := log.WithFields(log.Fields{
		"package":  "download",
		"struct":   "ChapterDownloader",
		"function": "work",
	})

	defer utils.StackTraceFromPanic(logger)

	for {
		waitCtx, cancel := context.WithTimeout(ctx, downloader.config.PollInterval)
		key, err := downloader.queue.Front(waitCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				logger.Debug("Chapter download worker terminated")
				return
			}
			// poll interval passed
			continue
		}

		downloader.mutex.Lock()
		job, ok := downloader.jobs[key]
		downloader.mutex.Unlock()

		if !ok {
			downloader.queue.Remove(key)
			continue
		}

		downloader.runJob(ctx, job)
	}
}

func (downloader *ChapterDownloader) runJob(ctx context.Context, job Job) {
	logger := log.WithFields(log.Fields{
		"package":  "download",
		"struct":   "ChapterDownloader",
		"function": "runJob",
	})

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	running := &runningJob{
		key:    job.Key,
		cancel: cancel,
	}

	// completed since it was queued, the pages on disk are left alone
	if downloader.storage.IsChapterDownloaded(job.ChapterRef()) {
		canceled := downloader.releaseJob(running, true)
		if !canceled {
			logger.Infof("Chapter of %s is downloaded already", job.ToString())
			downloader.notifyStateChange(job.Key, DownloadStateDownloaded)
		}
		return
	}

	downloader.mutex.Lock()
	downloader.running = running
	downloader.progressKey = job.Key
	downloader.progress = 0
	downloader.mutex.Unlock()

	downloader.notifyStateChange(job.Key, DownloadStateDownloading)
	logger.Infof("Downloading %s", job.ToString())

	err := downloader.download(jobCtx, running, job)
	if err == nil {
		// report 100% before the job leaves the queue
		downloader.setProgress(job.Key, 1)
		downloader.releaseJob(running, true)

		logger.Infof("Downloaded %s", job.ToString())
		promCounterForCompletedJobs.Inc()
		downloader.notifyStateChange(job.Key, DownloadStateDownloaded)
		return
	}

	// partial pages never survive a failed job
	if _, delErr := downloader.storage.DeleteDownloadedChapter(job.ChapterRef()); delErr != nil {
		logger.WithError(delErr).Errorf("failed to delete partial chapter of %s", job.ToString())
	}

	stopping := ctx.Err() != nil
	canceled := downloader.releaseJob(running, !stopping)

	switch {
	case canceled:
		logger.Infof("Download of %s is canceled", job.ToString())
		downloader.notifyStateChange(job.Key, DownloadStateNone)
	case stopping:
		// the job stays queued
		logger.Infof("Download of %s is interrupted", job.ToString())
		downloader.notifyStateChange(job.Key, DownloadStatePending)
	default:
		logger.WithError(err).Errorf("failed to download %s", job.ToString())
		promCounterForFailedJobs.Inc()
		downloader.notifyStateChange(job.Key, DownloadStateNone)
		downloader.notifyFailure(job, err)
	}
}

// releaseJob clears the running job and resets progress, removing the job from the queue if remove is set.
// A job canceled by the user is removed by Cancel already. Returns true if the job was canceled.
func (downloader *ChapterDownloader) releaseJob(running *runningJob, remove bool) bool {
	downloader.mutex.Lock()
	defer downloader.mutex.Unlock()

	downloader.running = nil
	downloader.progressKey = JobKey{}
	downloader.progress = 0

	if running.canceled {
		return true
	}

	if remove {
		if _, ok := downloader.jobs[running.key]; ok {
			delete(downloader.jobs, running.key)
			promGaugeForPendingJobs.Dec()
		}
		downloader.queue.Remove(running.key)
	}
	return false
}

func (downloader *ChapterDownloader) download(ctx context.Context, running *runningJob, job Job) error {
	logger := log.WithFields(log.Fields{
		"package":  "download",
		"struct":   "ChapterDownloader",
		"function": "download",
	})

	ref := job.ChapterRef()
	epoch := downloader.storage.ChapterEpoch(ref)

	content, err := downloader.source.GetChapterContent(ctx, job.Key.SourceID, job.Key.MangaID, job.Key.ChapterID)
	if err != nil {
		return downloader.wrapError(job, running, err)
	}

	if content == nil {
		return commons.NewDownloadFailedError(job.Name, errNoChapterData)
	}

	total := len(content.Pages)
	if total == 0 {
		return commons.NewDownloadFailedError(job.Name, errNoChapterPages)
	}

	for pageIndex, page := range content.Pages {
		if downloader.limiter != nil {
			err = downloader.limiter.Wait(ctx)
			if err != nil {
				return downloader.wrapError(job, running, err)
			}
		}

		if ctx.Err() != nil {
			return downloader.wrapError(job, running, ctx.Err())
		}

		req := image.NewNetworkImageRequest(page.URL, page.Headers)
		body, _, err := downloader.loader.LoadHTTPImage(ctx, req)
		if err != nil {
			return downloader.wrapError(job, running, err)
		}

		err = downloader.storage.SaveChapterPage(ref, epoch, pageIndex, body)
		body.Close()
		if err != nil {
			return downloader.wrapError(job, running, err)
		}

		promCounterForPagesWritten.Inc()
		downloader.setProgress(job.Key, float64(pageIndex+1)/float64(total))
		logger.Debugf("Wrote page %d/%d of %s", pageIndex+1, total, job.ToString())
	}

	if ctx.Err() != nil {
		return downloader.wrapError(job, running, ctx.Err())
	}

	err = downloader.storage.MarkChapterComplete(ref, epoch, total)
	if err != nil {
		return downloader.wrapError(job, running, err)
	}

	return nil
}

func (downloader *ChapterDownloader) wrapError(job Job, running *runningJob, err error) error {
	downloader.mutex.Lock()
	canceled := running.canceled
	downloader.mutex.Unlock()

	if canceled && (errors.Is(err, context.Canceled) || commons.IsChapterDeletedError(err)) {
		return errJobCanceled
	}
	return commons.NewDownloadFailedError(job.Name, err)
}
