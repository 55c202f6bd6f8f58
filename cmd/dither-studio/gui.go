package main

import (
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"

	"dither-studio/internal/views"
)

func (a *Application) runGUI() error {
	fyneApp := app.NewWithID(AppID)
	window := fyneApp.NewWindow(AppName)
	window.Resize(fyne.NewSize(1480, 760))
	window.CenterOnScreen()

	view := views.NewMainView(window, a.session, a.catalog, a.pool.Size(), a.logger)

	window.SetCloseIntercept(func() {
		a.logger.Info("Application", "window close requested", nil)
		go func() {
			_ = a.shutdown.Shutdown()
			fyne.Do(window.Close)
		}()
	})

	// a signal shuts the components down; the window follows
	go func() {
		<-a.shutdown.Done()
		fyne.Do(fyneApp.Quit)
	}()

	if a.opts.Image != "" {
		go func() {
			if err := a.session.LoadFile(a.opts.Image); err != nil {
				view.ShowError(err)
			}
		}()
		if a.opts.Watch {
			if err := a.startWatcher(nil); err != nil {
				return err
			}
		}
	}

	window.ShowAndRun()
	return nil
}
